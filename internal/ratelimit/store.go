package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the persistence contract for rate-limit counters.
//
// Counters are best-effort by design: implementations must apply writes for a
// single key in arrival order but are NOT required to serialize concurrent
// check-and-increment sequences. A lost update (undercount, slightly late
// block) is acceptable; a throughput bottleneck is not.
//
// Get returns ErrNotFound when no entry exists for the key.

type CounterStore interface {
	Get(ctx context.Context, key string) (Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error

	// DeleteOlderThan purges entries whose UpdatedAt is before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}
