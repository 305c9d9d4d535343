package ratelimit

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrKeyRequired       = errors.New("key is required")
	ErrStoreRequired     = errors.New("store is required")
	ErrInvalidRules      = errors.New("invalid rate limit rules")
	ErrStoreUnavailable  = errors.New("rate limit store unavailable")
)
