package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

// DefaultFallbackIdentifier is used when the caller could not be identified.
// Every unidentified caller shares this single bucket per route.
const DefaultFallbackIdentifier = "anonymous"

// Limiter enforces fixed-window limits keyed by caller identity and route.
type Limiter struct {
	store    Store
	rules    Rules
	now      func() time.Time
	fallback string
	prefix   string
	logger   *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithFallbackIdentifier sets the identity used for callers with no identifier.
func WithFallbackIdentifier(id string) Option {
	return func(l *Limiter) {
		if id != "" {
			l.fallback = id
		}
	}
}

// WithKeyPrefix namespaces every storage key, e.g. "ratelimit:".
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) {
		l.prefix = prefix
	}
}

// WithLogger sets the logger used to report store failures.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// New creates a fixed-window limiter.
// Returns an error when the rules contain a non-positive limit or window.
func New(store Store, rules Rules, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:    store,
		rules:    rules,
		now:      time.Now,
		fallback: DefaultFallbackIdentifier,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Rules returns the rules the limiter was built with.
func (l *Limiter) Rules() Rules {
	return l.rules
}

// Check counts one request for identifier on routeKey and reports whether it
// fits in the current window. The request is counted even when rejected.
//
// Check never fails: when the store is unavailable the request is allowed
// and the failure is logged.
func (l *Limiter) Check(ctx context.Context, identifier, routeKey string) Result {
	rule := l.rules.For(routeKey)
	now := l.now()
	key := l.key(identifier, routeKey)

	counter, err := l.store.Increment(ctx, key, now, rule.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit store failed, allowing request",
			logger.Component("ratelimit"),
			logger.RouteKey(routeKey),
			logger.Error(err),
		)
		return Result{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit,
			ResetAt:   now.Add(rule.Window),
		}
	}

	return newResult(rule, counter)
}

// Status reports the current window for identifier on routeKey without
// counting a request.
func (l *Limiter) Status(ctx context.Context, identifier, routeKey string) (Result, error) {
	rule := l.rules.For(routeKey)
	now := l.now()

	counter, ok, err := l.store.Get(ctx, l.key(identifier, routeKey))
	if err != nil {
		return Result{}, fmt.Errorf("get counter: %w", err)
	}
	if !ok || counter.Expired(now) {
		return Result{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit,
			ResetAt:   now.Add(rule.Window),
		}, nil
	}

	res := newResult(rule, counter)
	// Status describes the next request, not the last one.
	res.Allowed = counter.Count < int64(rule.Limit)
	return res, nil
}

// Reset discards the counter for identifier on routeKey.
func (l *Limiter) Reset(ctx context.Context, identifier, routeKey string) error {
	if err := l.store.Delete(ctx, l.key(identifier, routeKey)); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

func (l *Limiter) key(identifier, routeKey string) string {
	if identifier == "" {
		identifier = l.fallback
	}
	return l.prefix + routeKey + ":" + identifier
}

func newResult(rule Rule, counter Counter) Result {
	limit := int64(rule.Limit)
	return Result{
		Allowed:   counter.Count <= limit,
		Limit:     rule.Limit,
		Remaining: int(max(0, limit-counter.Count)),
		ResetAt:   counter.ResetAt,
	}
}
