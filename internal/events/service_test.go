package events

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresSubjectAndType(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)

	if err := svc.Append(context.Background(), AccessEvent{Type: EventTypeAccessDenied}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
	if err := svc.Append(context.Background(), AccessEvent{SubjectID: "u"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestService_StampsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store).WithClock(func() time.Time { return now })

	err := svc.Append(context.Background(), AccessEvent{
		SubjectID:     "u1",
		InstitutionID: "inst-a",
		Type:          EventTypeAccessDenied,
		Resource:      "department",
		Action:        "grade_view",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := store.All()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !evs[0].CreatedAt.Equal(now) {
		t.Fatalf("expected clock timestamp, got %v", evs[0].CreatedAt)
	}
}

func TestMemoryStore_QueryFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed := []AccessEvent{
		{ID: "1", SubjectID: "a", InstitutionID: "i1", Type: EventTypeAccessDenied, CreatedAt: base},
		{ID: "2", SubjectID: "a", InstitutionID: "i1", Type: EventTypeAccessGranted, CreatedAt: base.Add(time.Minute)},
		{ID: "3", SubjectID: "b", InstitutionID: "i1", Type: EventTypeAccessDenied, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "4", SubjectID: "a", InstitutionID: "i2", Type: EventTypeAccessDenied, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range seed {
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.Query(context.Background(), Filter{SubjectID: "a", Type: EventTypeAccessDenied})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "4" || got[1].ID != "1" {
		t.Fatalf("expected descending order, got %q then %q", got[0].ID, got[1].ID)
	}

	got, err = store.Query(context.Background(), Filter{InstitutionID: "i1", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit applied, got %d", len(got))
	}

	got, err = store.Query(context.Background(), Filter{Since: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected since filter, got %d", len(got))
	}
}

func TestService_CountSince(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := AccessEvent{SubjectID: "u", Type: EventTypeAccessDenied, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := svc.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := svc.CountSince(context.Background(), Filter{SubjectID: "u", Type: EventTypeAccessDenied}, base.Add(30*time.Second), 10)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
