package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the current window's count is discarded.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	return r.RetryAfterAt(time.Now())
}

// RetryAfterAt is RetryAfter measured from the given instant.
func (r *Result) RetryAfterAt(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(0, r.ResetAt.Sub(now))
}

// Counter is the per-key state of a fixed window.
// Count only grows while the window is open; an expired counter is replaced
// by a fresh one with Count 1 instead of being decremented.
type Counter struct {
	Count   int64
	ResetAt time.Time
}

// Expired reports whether the window has closed at the given instant.
func (c Counter) Expired(now time.Time) bool {
	return !now.Before(c.ResetAt)
}

// Store defines the interface for rate limit storage backends.
type Store interface {
	// Get returns the counter stored for key. The bool is false when no
	// counter exists. Expired counters may still be returned until swept.
	Get(ctx context.Context, key string) (Counter, bool, error)

	// Set overwrites the counter for key.
	Set(ctx context.Context, key string, counter Counter) error

	// Increment atomically bumps the counter for key. A missing or expired
	// counter is replaced with {Count: 1, ResetAt: now+window}.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error)

	// Delete removes the given key from the store.
	Delete(ctx context.Context, key string) error

	// SweepExpired removes counters whose window closed before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
