package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_GetMapsNoRowsToNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM rate_limit_entries").
		WithArgs("u1:class_search").
		WillReturnRows(sqlmock.NewRows([]string{"key", "attempts", "window_start", "blocked_until", "updated_at"}))

	store := NewPostgresStore(db)
	if _, err := store.Get(context.Background(), "u1:class_search"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetScansBlockedUntil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	blocked := now.Add(15 * time.Minute)
	rows := sqlmock.NewRows([]string{"key", "attempts", "window_start", "blocked_until", "updated_at"}).
		AddRow("u1:class_search", 6, now, blocked, now)
	mock.ExpectQuery("SELECT (.+) FROM rate_limit_entries").
		WithArgs("u1:class_search").
		WillReturnRows(rows)

	store := NewPostgresStore(db)
	e, err := store.Get(context.Background(), "u1:class_search")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.BlockedUntil == nil || !e.BlockedUntil.Equal(blocked) {
		t.Fatalf("expected blocked_until scanned, got %v", e.BlockedUntil)
	}
}

func TestPostgresStore_UpsertOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO rate_limit_entries (.+) ON CONFLICT").
		WithArgs("u1:class_search", 2, now, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	err = store.Upsert(context.Background(), Entry{Key: "u1:class_search", Attempts: 2, WindowStart: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_DeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM rate_limit_entries WHERE updated_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewPostgresStore(db)
	if err := store.DeleteOlderThan(context.Background(), cutoff); err != nil {
		t.Fatalf("purge: %v", err)
	}
}
