package events

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a simple in-memory append-only store useful for tests.
// It is not intended for production use.

type MemoryStore struct {
	mu     sync.Mutex
	events []AccessEvent

	// AppendErr / QueryErr force failures for error-path tests.
	AppendErr error
	QueryErr  error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Append(ctx context.Context, e AccessEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]AccessEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	out := make([]AccessEvent, 0, len(m.events))
	for _, e := range m.events {
		if f.SubjectID != "" && e.SubjectID != f.SubjectID {
			continue
		}
		if f.InstitutionID != "" && e.InstitutionID != f.InstitutionID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// All returns a copy of every stored event, in append order.
func (m *MemoryStore) All() []AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AccessEvent, len(m.events))
	copy(out, m.events)
	return out
}
