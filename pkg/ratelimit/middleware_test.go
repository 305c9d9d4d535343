package ratelimit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studyhub/pkg/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("panics on missing dependencies", func(t *testing.T) {
		t.Parallel()
		limiter, _ := newTestLimiter(t, newFakeClock())

		assert.Panics(t, func() { ratelimit.Middleware(limiter, ratelimit.RouteChat, nil) })
		assert.Panics(t, func() { ratelimit.Middleware(nil, ratelimit.RouteChat, ratelimit.IPIdentifier) })
		assert.Panics(t, func() { ratelimit.Middleware(limiter, "", ratelimit.IPIdentifier) })
		assert.Panics(t, func() { ratelimit.RouteMiddleware(limiter, nil, ratelimit.IPIdentifier) })
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		limiter, _ := newTestLimiter(t, clock)
		handler := ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)(okHandler())

		req := httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("rejects with 429 once limit is exceeded", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		limiter, _ := newTestLimiter(t, clock)
		handler := ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)(okHandler())

		for range 5 {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		clock.Advance(20 * time.Second)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ai/transcribe", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "40", rec.Header().Get("Retry-After"))
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Too many requests", body["error"])
	})

	t.Run("retry after is at least one second", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		limiter, _ := newTestLimiter(t, clock)
		handler := ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)(okHandler())

		for range 5 {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		}

		clock.Advance(time.Minute - 100*time.Millisecond)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("retry after rounds partial seconds up", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		limiter, _ := newTestLimiter(t, clock)
		handler := ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)(okHandler())

		for range 5 {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		}

		clock.Advance(29*time.Second + 100*time.Millisecond)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "31", rec.Header().Get("Retry-After"))

		retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		clock.Advance(time.Duration(retryAfter) * time.Second)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "waiting exactly Retry-After is enough")
	})

	t.Run("unidentified callers share the fallback bucket", func(t *testing.T) {
		t.Parallel()
		limiter, store := newTestLimiter(t, newFakeClock())
		handler := ratelimit.Middleware(limiter, ratelimit.RouteChat, ratelimit.HeaderIdentifier("X-User-ID"))(okHandler())

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

		c, ok, err := store.Get(t.Context(), "chat:anonymous")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(2), c.Count)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		t.Parallel()
		limiter, err := ratelimit.New(failingStore{}, ratelimit.DefaultRules())
		require.NoError(t, err)
		handler := ratelimit.Middleware(limiter, ratelimit.RouteTranscribe, ratelimit.IPIdentifier)(okHandler())

		for range 10 {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestRouteMiddleware_ChiParam(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(t, newFakeClock())

	r := chi.NewRouter()
	r.With(ratelimit.RouteMiddleware(limiter, func(r *http.Request) string {
		return chi.URLParam(r, "route")
	}, ratelimit.IPIdentifier)).Post("/api/ai/{route}", okHandler().ServeHTTP)

	call := func(route string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ai/"+route, nil))
		return rec
	}

	rec := call(ratelimit.RouteGeneratePresentation)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	rec = call(ratelimit.RouteResearch)
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))

	rec = call("something-else")
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}
