package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for access events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
// Query returns events ordered by created_at descending.

type Store interface {
	Append(ctx context.Context, e AccessEvent) error
	Query(ctx context.Context, f Filter) ([]AccessEvent, error)
}

// Service validates and stamps events before they hit the store.
//
// IMPORTANT:
// - The event log is internal-only. Do not expose these records to tenant
//   users by default.
// - Callers decide per call site whether a failed append is fatal; forensic
//   writers treat it as best-effort.

type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// WithClock overrides the timestamp source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEvent = errors.New("events: invalid event")

func (s *Service) Append(ctx context.Context, e AccessEvent) error {
	if s.store == nil {
		return errors.New("events: store not configured")
	}
	if e.SubjectID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.store.Append(ctx, e)
}

func (s *Service) Query(ctx context.Context, f Filter) ([]AccessEvent, error) {
	if s.store == nil {
		return nil, errors.New("events: store not configured")
	}
	return s.store.Query(ctx, f)
}

// CountSince counts events matching the filter from `since` to now. The count
// is bounded by limit so escalation checks never scan unbounded history.
func (s *Service) CountSince(ctx context.Context, f Filter, since time.Time, limit int) (int, error) {
	f.Since = since
	f.Limit = limit
	evs, err := s.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(evs), nil
}
