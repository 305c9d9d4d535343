// Package ratelimit implements fixed-window request limits keyed by caller
// identity and route.
//
// Each (route, identifier) pair owns one Counter. The first request after a
// window closes replaces the counter with a fresh one; every other request
// increments it, including requests that end up rejected. Counters live in a
// Store: MemoryStore for a single process, RedisStore when replicas share
// limits.
//
// Usage:
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimit.New(store, ratelimit.DefaultRules())
//	if err != nil {
//		return err
//	}
//
//	r.With(ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)).
//		Post("/api/ai/transcribe", transcribeHandler)
//
// The limiter fails open: if the store errors, the request is allowed and the
// failure is logged.
package ratelimit
