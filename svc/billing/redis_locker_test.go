package billing_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studyhub/svc/billing"
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRedisLocker_NilClient(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { billing.NewRedisLocker(nil) })
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	client := setupRedis(t)
	locker := billing.NewRedisLocker(client,
		billing.WithLockPrefix("test:lock:"+uuid.NewString()+":"),
		billing.WithLockRetryInterval(5*time.Millisecond),
	)

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "user-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestRedisLocker_ContextAndTTL(t *testing.T) {
	client := setupRedis(t)
	prefix := "test:lock:" + uuid.NewString() + ":"
	locker := billing.NewRedisLocker(client,
		billing.WithLockPrefix(prefix),
		billing.WithLockTTL(200*time.Millisecond),
		billing.WithLockRetryInterval(5*time.Millisecond),
	)

	unlock, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "user-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A holder that never unlocks is evicted by the TTL.
	unlock2, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)

	// The expired holder must not release the new holder's lock.
	unlock()
	exists, err := client.Exists(context.Background(), prefix+"user-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	unlock2()
	unlock2()
	exists, err = client.Exists(context.Background(), prefix+"user-1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	_, err = locker.Lock(context.Background(), "")
	assert.Error(t, err)
}
