package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory.
// Suitable for a single instance; use RedisStore when several replicas share limits.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]Counter

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired counters are swept.
// Zero disables the background sweep; expiry is still applied lazily.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval >= 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates a new in-memory store with automatic cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		counters:        make(map[string]Counter),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Get returns the stored counter for key.
func (s *MemoryStore) Get(_ context.Context, key string) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	return c, ok, nil
}

// Set overwrites the counter for key.
func (s *MemoryStore) Set(_ context.Context, key string, counter Counter) error {
	if key == "" {
		return ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key] = counter
	return nil
}

// Increment bumps the counter for key under the store lock.
func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	if key == "" {
		return Counter{}, ErrKeyRequired
	}
	if window <= 0 {
		return Counter{}, ErrInvalidWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || c.Expired(now) {
		c = Counter{Count: 1, ResetAt: now.Add(window)}
	} else {
		c.Count++
	}
	s.counters[key] = c

	return c, nil
}

// Delete removes the given key from the store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

// SweepExpired removes every counter whose window has closed.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.counters {
		if c.Expired(now) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored counters, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.SweepExpired(context.Background(), time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
