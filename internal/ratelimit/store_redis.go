package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in Redis, the primary production backend.
//
// Layout:
// - rl:entry:<key> holds the JSON-encoded Entry with a TTL of maxIdle.
// - rl:index is a sorted set of keys scored by UpdatedAt (unix ms), used by
//   DeleteOlderThan so cleanup never needs SCAN.
//
// Entry write and index update happen in one Lua script so the index can
// never reference a missing entry. Per-key atomicity is all we need; the
// limiter tolerates lost updates across concurrent checks.

type RedisStore struct {
	rdb     *redis.Client
	maxIdle time.Duration
}

const (
	redisEntryPrefix = "rl:entry:"
	redisIndexKey    = "rl:index"
)

var upsertScript = redis.NewScript(`
-- KEYS[1] = entry key
-- KEYS[2] = index key
-- ARGV[1] = entry JSON
-- ARGV[2] = updated_at unix ms (index score)
-- ARGV[3] = ttl_ms
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], KEYS[1])
return 1
`)

var purgeScript = redis.NewScript(`
-- KEYS[1] = index key
-- ARGV[1] = cutoff unix ms
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, k in ipairs(stale) do
  redis.call('DEL', k)
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
return #stale
`)

func NewRedisStore(rdb *redis.Client, maxIdle time.Duration) *RedisStore {
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, maxIdle: maxIdle}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	raw, err := s.rdb.Get(ctx, redisEntryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("ratelimit: decode entry: %w", err)
	}
	return e, nil
}

func (s *RedisStore) Upsert(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ratelimit: encode entry: %w", err)
	}
	keys := []string{redisEntryPrefix + e.Key, redisIndexKey}
	err = upsertScript.Run(ctx, s.rdb, keys, raw, e.UpdatedAt.UnixMilli(), s.maxIdle.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("ratelimit: redis upsert: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisEntryPrefix+key)
	pipe.ZRem(ctx, redisIndexKey, redisEntryPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	err := purgeScript.Run(ctx, s.rdb, []string{redisIndexKey}, cutoff.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("ratelimit: redis purge: %w", err)
	}
	return nil
}
