package blocklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"campus-platform/internal/events"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsUserBlocked_NoEvents(t *testing.T) {
	svc := NewService(events.NewService(events.NewMemoryStore()))

	st, err := svc.IsUserBlocked(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Blocked {
		t.Fatalf("expected not blocked")
	}
}

func TestBlockThenExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := events.NewMemoryStore()
	ev := events.NewService(store).WithClock(fixedClock(now))
	svc := NewService(ev).WithClock(fixedClock(now))

	if err := svc.TemporaryBlockUser(context.Background(), "u1", "inst-a", "repeated violations", 30*time.Minute); err != nil {
		t.Fatalf("block: %v", err)
	}

	st, err := svc.IsUserBlocked(context.Background(), "u1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Blocked {
		t.Fatalf("expected blocked")
	}
	if st.Reason != "repeated violations" {
		t.Fatalf("expected reason carried, got %q", st.Reason)
	}
	want := now.Add(30 * time.Minute)
	if st.Until == nil || !st.Until.Equal(want) {
		t.Fatalf("expected until %v, got %v", want, st.Until)
	}

	// Block event shape: a denial on the user_account resource.
	evs := store.All()
	if len(evs) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(evs))
	}
	if evs[0].Type != events.EventTypeAccessDenied || evs[0].Resource != ResourceUserAccount || evs[0].Action != ActionTemporaryBlock {
		t.Fatalf("unexpected block event: %+v", evs[0])
	}
	if evs[0].Metadata[events.MetaDurationMinutes] != 30 {
		t.Fatalf("expected duration recorded, got %v", evs[0].Metadata[events.MetaDurationMinutes])
	}

	// After expiry the same log yields not-blocked.
	svc.WithClock(fixedClock(now.Add(31 * time.Minute)))
	st, err = svc.IsUserBlocked(context.Background(), "u1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if st.Blocked {
		t.Fatalf("expected block expired")
	}
}

func TestLatestBlockWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := events.NewMemoryStore()
	ev := events.NewService(store).WithClock(fixedClock(now))
	svc := NewService(ev).WithClock(fixedClock(now))

	if err := svc.TemporaryBlockUser(context.Background(), "u1", "inst-a", "first", 5*time.Minute); err != nil {
		t.Fatalf("block: %v", err)
	}

	// A later, longer block supersedes the earlier one.
	later := now.Add(time.Minute)
	ev.WithClock(fixedClock(later))
	svc.WithClock(fixedClock(later))
	if err := svc.TemporaryBlockUser(context.Background(), "u1", "inst-a", "second", time.Hour); err != nil {
		t.Fatalf("block: %v", err)
	}

	st, err := svc.IsUserBlocked(context.Background(), "u1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Blocked || st.Reason != "second" {
		t.Fatalf("expected latest block to win, got %+v", st)
	}
}

func TestTemporaryBlockUser_Validation(t *testing.T) {
	svc := NewService(events.NewService(events.NewMemoryStore()))

	if err := svc.TemporaryBlockUser(context.Background(), "", "i", "r", time.Minute); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := svc.TemporaryBlockUser(context.Background(), "u", "i", "", time.Minute); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := svc.TemporaryBlockUser(context.Background(), "u", "i", "r", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTemporaryBlockUser_PropagatesStoreFailure(t *testing.T) {
	store := events.NewMemoryStore()
	store.AppendErr = errors.New("down")
	svc := NewService(events.NewService(store))

	if err := svc.TemporaryBlockUser(context.Background(), "u1", "inst-a", "abuse", time.Hour); err == nil {
		t.Fatalf("expected append failure to propagate; the event is the block")
	}
}
