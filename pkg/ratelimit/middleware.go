package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RouteResolver maps a request to its route key.
type RouteResolver func(*http.Request) string

// Middleware enforces the limit for a fixed route key.
// Store failures never block requests, see Limiter.Check.
func Middleware(limiter *Limiter, routeKey string, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if routeKey == "" {
		panic("ratelimit.Middleware: routeKey is required")
	}
	return RouteMiddleware(limiter, func(*http.Request) string { return routeKey }, keyFunc)
}

// RouteMiddleware enforces limits for the route key returned by resolver,
// e.g. a chi URL param. An empty route key uses the default rule.
func RouteMiddleware(limiter *Limiter, resolver RouteResolver, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("ratelimit.RouteMiddleware: limiter is required")
	}
	if resolver == nil {
		panic("ratelimit.RouteMiddleware: resolver is required")
	}
	if keyFunc == nil {
		panic("ratelimit.RouteMiddleware: keyFunc is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Check(r.Context(), keyFunc(r), resolver(r))

			SetHeaders(w, result)

			if !result.Allowed {
				writeTooManyRequests(w, result.RetryAfterAt(limiter.now()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for result.
func SetHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeTooManyRequests(w http.ResponseWriter, wait time.Duration) {
	// Rounded up so a client waiting exactly Retry-After lands past reset.
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
}
