package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/dmitrymomot/studyhub/pkg/clientip"
)

// maxKeyLength is the maximum allowed length for an identifier
// to prevent excessively long storage keys in backends like Redis.
const maxKeyLength = 64

// KeyFunc extracts the caller identifier from an HTTP request.
// An empty result means the caller is unidentified and the limiter's
// fallback identifier is used.
type KeyFunc func(*http.Request) string

// IPIdentifier identifies callers by client IP.
// Prefers the IP stored by clientip.Middleware and resolves it otherwise.
func IPIdentifier(r *http.Request) string {
	if ip := clientip.GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return clientip.GetIP(r)
}

// HeaderIdentifier identifies callers by the value of the named header,
// e.g. a user id set by an upstream auth proxy.
func HeaderIdentifier(name string) KeyFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// Composite combines multiple key extraction functions into a single key.
// Long keys (>64 chars) are hashed to 32 hex chars using SHA256.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			hash := sha256.Sum256([]byte(combined))
			return hex.EncodeToString(hash[:16])
		}

		return combined
	}
}

// FirstOf returns the first non-empty identifier, e.g. the user id header
// when present and the client IP otherwise.
func FirstOf(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				return key
			}
		}
		return ""
	}
}
