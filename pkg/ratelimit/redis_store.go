package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript bumps the counter and starts the window on the first hit.
// A key left without a TTL is given one so it cannot live forever.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore keeps counters in Redis so replicas share the same windows.
// Keys expire on their own, so SweepExpired has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		panic("ratelimit.NewRedisStore: client is required")
	}
	return &RedisStore{client: client}
}

// Get returns the counter for key with its reset time derived from the key TTL.
func (s *RedisStore) Get(ctx context.Context, key string) (Counter, bool, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counter{}, false, errors.Join(ErrStoreUnavailable, err)
	}

	raw, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Counter{}, false, nil
	}
	if err != nil {
		return Counter{}, false, errors.Join(ErrStoreUnavailable, err)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Counter{}, false, errors.Join(ErrStoreUnavailable, err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}

	return Counter{Count: count, ResetAt: time.Now().Add(ttl)}, true, nil
}

// Set overwrites the counter. An already expired counter deletes the key.
func (s *RedisStore) Set(ctx context.Context, key string, counter Counter) error {
	if key == "" {
		return ErrKeyRequired
	}

	ttl := time.Until(counter.ResetAt)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	if err := s.client.Set(ctx, key, counter.Count, ttl).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Increment runs the increment script. The window is measured by Redis, so
// now only anchors the returned ResetAt.
func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	if key == "" {
		return Counter{}, ErrKeyRequired
	}
	if window <= 0 {
		return Counter{}, ErrInvalidWindow
	}

	vals, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return Counter{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}

	return Counter{
		Count:   vals[0],
		ResetAt: now.Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

// Delete removes the given key from the store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// SweepExpired is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
