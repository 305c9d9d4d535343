package subscription_test

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studyhub/pkg/subscription"
)

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name       string
		signature  string
		body       []byte
		setup      func(p *mockProvider)
		wantStatus int
		wantBody   string
	}{
		{
			name:      "handled event",
			signature: "t=1,v1=ok",
			body:      payload,
			setup: func(p *mockProvider) {
				p.On("ConstructEvent", payload, "t=1,v1=ok").Return(deletedEvent("evt_1", baseTime), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"received":true}`,
		},
		{
			name:      "unknown event acknowledged",
			signature: "t=1,v1=ok",
			body:      payload,
			setup: func(p *mockProvider) {
				p.On("ConstructEvent", payload, "t=1,v1=ok").Return(&subscription.Event{ID: "evt_1", Type: "charge.refunded"}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"received":true}`,
		},
		{
			name:       "missing signature header",
			body:       payload,
			setup:      func(*mockProvider) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid signature"}`,
		},
		{
			name:      "bad signature",
			signature: "t=1,v1=forged",
			body:      payload,
			setup: func(p *mockProvider) {
				p.On("ConstructEvent", payload, "t=1,v1=forged").
					Return(nil, fmt.Errorf("%w: no matching signature", subscription.ErrInvalidSignature))
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid signature"}`,
		},
		{
			name:       "oversized body",
			signature:  "t=1,v1=ok",
			body:       bytes.Repeat([]byte("a"), subscription.MaxWebhookBodyBytes+1),
			setup:      func(*mockProvider) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid signature"}`,
		},
		{
			name:      "provider failure",
			signature: "t=1,v1=ok",
			body:      payload,
			setup: func(p *mockProvider) {
				p.On("ConstructEvent", payload, "t=1,v1=ok").Return(checkoutEvent("evt_1", baseTime), nil)
				p.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("timeout"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Webhook handler failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := &mockProvider{}
			tt.setup(provider)
			rec := subscription.NewReconciler(subscription.NewMemoryStore(), provider)
			handler := subscription.NewWebhookHandler(rec, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(subscription.SignatureHeader, tt.signature)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, strings.TrimSpace(w.Body.String()))
			provider.AssertExpectations(t)
		})
	}
}

func TestNewWebhookHandler_NilReconciler(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { subscription.NewWebhookHandler(nil, nil) })
}
