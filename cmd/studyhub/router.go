package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/studyhub/pkg/clientip"
	"github.com/dmitrymomot/studyhub/pkg/httpserver"
	"github.com/dmitrymomot/studyhub/pkg/logger"
	"github.com/dmitrymomot/studyhub/pkg/ratelimit"
	"github.com/dmitrymomot/studyhub/pkg/requestid"
)

// aiRoutes are the metered AI endpoints, each with its own quota.
var aiRoutes = []string{
	ratelimit.RouteTranscribe,
	ratelimit.RouteGenerateNotes,
	ratelimit.RouteGenerateQuiz,
	ratelimit.RouteGenerateFlashcards,
	ratelimit.RouteGeneratePresentation,
	ratelimit.RouteChat,
	ratelimit.RouteResearch,
}

// UserIDHeader is set by the auth gateway for signed-in students.
const UserIDHeader = "X-User-ID"

// callerIdentifier keys rate limits by client IP. The user id header is
// honored only when trusted, i.e. the service is reachable solely through
// the gateway that sets it; otherwise any caller could pick a fresh bucket.
func callerIdentifier(trustUserIDHeader bool) ratelimit.KeyFunc {
	if !trustUserIDHeader {
		return ratelimit.IPIdentifier
	}
	return ratelimit.FirstOf(ratelimit.HeaderIdentifier(UserIDHeader), ratelimit.IPIdentifier)
}

type routerDeps struct {
	log       *slog.Logger
	limiter   *ratelimit.Limiter
	identify  ratelimit.KeyFunc
	webhook   http.Handler
	readiness []func(context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware, middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(d.log, d.readiness...))

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/stripe", d.webhook.ServeHTTP)

		r.Route("/ai", func(r chi.Router) {
			for _, route := range aiRoutes {
				r.With(ratelimit.Middleware(d.limiter, route, d.identify)).
					Post("/"+route, notImplemented(d.log, route))
				r.Get("/"+route+"/limit", limitStatus(d.log, d.limiter, route, d.identify))
			}
		})
	})

	return r
}

// notImplemented stands in for the AI feature handlers, which live in
// another service.
func notImplemented(log *slog.Logger, route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.DebugContext(r.Context(), "ai route not served here", logger.RouteKey(route))
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "Not implemented"})
	}
}

type limitResponse struct {
	Route     string    `json:"route"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// limitStatus reports the caller's quota without consuming it.
func limitStatus(log *slog.Logger, limiter *ratelimit.Limiter, route string, identify ratelimit.KeyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := limiter.Status(r.Context(), identify(r), route)
		if err != nil {
			log.ErrorContext(r.Context(), "failed to read rate limit", logger.RouteKey(route), logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Rate limit status unavailable"})
			return
		}
		ratelimit.SetHeaders(w, res)
		writeJSON(w, http.StatusOK, limitResponse{
			Route:     route,
			Limit:     res.Limit,
			Remaining: res.Remaining,
			ResetAt:   res.ResetAt.UTC(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
