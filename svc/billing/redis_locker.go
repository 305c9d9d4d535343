package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a subscription.Locker shared by all replicas.
// The TTL bounds how long a crashed holder blocks the user.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithLockRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

func WithLockPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

func WithLockLogger(log *slog.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewRedisLocker creates a RedisLocker. Panics if client is nil.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	if client == nil {
		panic("billing: redis client is required")
	}

	l := &RedisLocker{
		client:        client,
		prefix:        "billing:lock:",
		ttl:           30 * time.Second,
		retryInterval: 50 * time.Millisecond,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock retries SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("billing: lock key is empty")
	}

	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.WarnContext(releaseCtx, "failed to release profile lock",
				logger.Component("billing"),
				slog.String("key", redisKey),
				logger.Error(err),
			)
		}
	}, nil
}
