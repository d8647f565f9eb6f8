package events

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO access_events").
		WithArgs("id-1", "u1", "inst-a", "dept-1", "teacher", "access_denied", "department", "grade_view", []byte(`{"reason":"x"}`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	err = store.Append(context.Background(), AccessEvent{
		ID:            "id-1",
		SubjectID:     "u1",
		InstitutionID: "inst-a",
		DepartmentID:  "dept-1",
		Role:          "teacher",
		Type:          EventTypeAccessDenied,
		Resource:      "department",
		Action:        "grade_view",
		Metadata:      map[string]any{"reason": "x"},
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_QueryBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "subject_id", "institution_id", "department_id", "role", "type", "resource", "action", "metadata", "created_at"}).
		AddRow("id-1", "u1", "inst-a", "", "", "access_denied", "department", "grade_view", []byte(`{"reason":"x"}`), now)

	mock.ExpectQuery("SELECT (.+) FROM access_events").
		WithArgs("u1", "access_denied", 5).
		WillReturnRows(rows)

	store := NewPostgresStore(db)
	got, err := store.Query(context.Background(), Filter{SubjectID: "u1", Type: EventTypeAccessDenied, Limit: 5})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Metadata["reason"] != "x" {
		t.Fatalf("expected metadata decoded, got %v", got[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
