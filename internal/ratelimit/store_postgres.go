package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps counters in Postgres for deployments without Redis.
//
// NOTE: This store assumes the following table exists:
//
//	CREATE TABLE rate_limit_entries (
//	    key           TEXT PRIMARY KEY,
//	    attempts      INT NOT NULL,
//	    window_start  TIMESTAMPTZ NOT NULL,
//	    blocked_until TIMESTAMPTZ,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX ON rate_limit_entries (updated_at);
//
// Upsert uses INSERT ... ON CONFLICT so concurrent service instances converge
// on last-writer-wins per key. That is deliberate; counters are best-effort
// and must not take row locks on the hot path.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	const q = `
SELECT key, attempts, window_start, blocked_until, updated_at
FROM rate_limit_entries
WHERE key = $1
`
	var (
		e       Entry
		blocked sql.NullTime
	)
	if err := s.db.QueryRowContext(ctx, q, key).Scan(
		&e.Key,
		&e.Attempts,
		&e.WindowStart,
		&blocked,
		&e.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("ratelimit: get: %w", err)
	}
	if blocked.Valid {
		t := blocked.Time
		e.BlockedUntil = &t
	}
	return e, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO rate_limit_entries (key, attempts, window_start, blocked_until, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key) DO UPDATE
SET attempts = EXCLUDED.attempts,
    window_start = EXCLUDED.window_start,
    blocked_until = EXCLUDED.blocked_until,
    updated_at = EXCLUDED.updated_at
`
	var blocked any
	if e.BlockedUntil != nil {
		blocked = *e.BlockedUntil
	}
	if _, err := s.db.ExecContext(ctx, q, e.Key, e.Attempts, e.WindowStart, blocked, e.UpdatedAt); err != nil {
		return fmt.Errorf("ratelimit: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM rate_limit_entries WHERE key = $1`
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("ratelimit: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	const q = `DELETE FROM rate_limit_entries WHERE updated_at < $1`
	if _, err := s.db.ExecContext(ctx, q, cutoff); err != nil {
		return fmt.Errorf("ratelimit: purge: %w", err)
	}
	return nil
}
