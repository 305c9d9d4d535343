package subscription

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

const (
	// SignatureHeader carries the provider's payload signature.
	SignatureHeader = "Stripe-Signature"

	// MaxWebhookBodyBytes caps the size of a webhook payload.
	MaxWebhookBodyBytes = 1 << 20
)

// NewWebhookHandler exposes the reconciler as the provider's webhook endpoint.
//
//	200 {"received":true}              event handled, including ignored events
//	400 {"error":"Invalid signature"}  payload could not be authenticated
//	500 {"error":"Webhook handler failed"} provider or store failure, provider retries
func NewWebhookHandler(r *Reconciler, log *slog.Logger) http.Handler {
	if r == nil {
		panic("subscription: Reconciler is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(logger.Component("billing_webhook"))

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		signature := req.Header.Get(SignatureHeader)
		if signature == "" {
			log.WarnContext(ctx, "webhook without signature header")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxWebhookBodyBytes))
		if err != nil {
			log.WarnContext(ctx, "failed to read webhook body", logger.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
			return
		}

		if _, err := r.HandleWebhook(ctx, payload, signature); err != nil {
			if errors.Is(err, ErrInvalidSignature) {
				log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
				return
			}
			log.ErrorContext(ctx, "webhook handler failed", logger.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook handler failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
