package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process counter store for tests. Production deployments
// must use a shared store (Redis or Postgres); in-process counters do not
// survive restarts and do not cover multiple instances.

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry

	// GetErr / UpsertErr / DeleteErr force failures for error-path tests.
	GetErr    error
	UpsertErr error
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return Entry{}, m.GetErr
	}
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.entries[e.Key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len reports the stored entry count.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
