package blocklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-platform/internal/events"
)

// Service issues and queries temporary blocks.
//
// There is no mutable block table: a block is one append-only event, and the
// current state is derived from the most recent one. That makes blocking
// idempotent and leaves a permanent audit trail. Callers doing high-frequency
// checks should cache IsUserBlocked for a short TTL.

const (
	ResourceUserAccount  = "user_account"
	ActionTemporaryBlock = "temporary_block"
)

var ErrInvalidArgument = errors.New("blocklist: invalid argument")

type Service struct {
	events *events.Service
	clock  func() time.Time
}

func NewService(ev *events.Service) *Service {
	return &Service{events: ev, clock: time.Now}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Status is the derived block state for a subject.
type Status struct {
	Blocked bool       `json:"blocked"`
	Reason  string     `json:"reason,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
}

// TemporaryBlockUser appends one temporary_block event. The event IS the
// block; if the append fails the subject is not blocked, so the error
// propagates.
func (s *Service) TemporaryBlockUser(ctx context.Context, subjectID, institutionID, reason string, duration time.Duration) error {
	if subjectID == "" || reason == "" {
		return fmt.Errorf("%w: subject and reason required", ErrInvalidArgument)
	}
	if duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}

	until := s.clock().UTC().Add(duration)
	return s.events.Append(ctx, events.AccessEvent{
		SubjectID:     subjectID,
		InstitutionID: institutionID,
		Type:          events.EventTypeAccessDenied,
		Resource:      ResourceUserAccount,
		Action:        ActionTemporaryBlock,
		Metadata: map[string]any{
			events.MetaReason:          reason,
			events.MetaBlockUntil:      until.Format(time.RFC3339Nano),
			events.MetaDurationMinutes: int(duration / time.Minute),
		},
	})
}

// IsUserBlocked derives the current block state from the latest
// temporary_block event. No event, or an expired one, means not blocked.
func (s *Service) IsUserBlocked(ctx context.Context, subjectID string) (Status, error) {
	if subjectID == "" {
		return Status{}, fmt.Errorf("%w: subject required", ErrInvalidArgument)
	}

	evs, err := s.events.Query(ctx, events.Filter{
		SubjectID: subjectID,
		Action:    ActionTemporaryBlock,
		Limit:     1,
	})
	if err != nil {
		return Status{}, fmt.Errorf("blocklist: query latest block: %w", err)
	}
	if len(evs) == 0 {
		return Status{}, nil
	}

	until, err := blockUntilFrom(evs[0])
	if err != nil {
		return Status{}, err
	}
	if !until.After(s.clock().UTC()) {
		return Status{}, nil
	}

	reason, _ := evs[0].Metadata[events.MetaReason].(string)
	return Status{Blocked: true, Reason: reason, Until: &until}, nil
}

func blockUntilFrom(e events.AccessEvent) (time.Time, error) {
	raw, ok := e.Metadata[events.MetaBlockUntil].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("blocklist: event %s missing blockUntil", e.ID)
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("blocklist: event %s bad blockUntil: %w", e.ID, err)
	}
	return until, nil
}
