package stripe_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studyhub/pkg/subscription"
	"github.com/dmitrymomot/studyhub/pkg/subscription/stripe"
)

const testSecret = "whsec_test_secret"

type mockSubscriptions struct {
	mock.Mock
}

func (m *mockSubscriptions) Get(id string, params *stripego.SubscriptionParams) (*stripego.Subscription, error) {
	args := m.Called(id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripego.Subscription), args.Error(1)
}

func newProvider(t *testing.T, subs stripe.SubscriptionGetter) *stripe.Provider {
	t.Helper()
	p, err := stripe.NewProvider(stripe.Config{
		SecretKey:        "sk_test_123",
		WebhookSecret:    testSecret,
		WebhookTolerance: 5 * time.Minute,
	}, stripe.WithSubscriptionGetter(subs))
	require.NoError(t, err)
	return p
}

func sign(payload string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: at,
	}).Header
}

func eventJSON(id, typ string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2020-08-27","type":%q,"created":%d,"data":{"object":%s}}`,
		id, typ, created, object)
}

func TestNewProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := stripe.NewProvider(stripe.Config{WebhookSecret: testSecret})
	assert.ErrorIs(t, err, stripe.ErrMissingSecretKey)

	_, err = stripe.NewProvider(stripe.Config{SecretKey: "sk_test"})
	assert.ErrorIs(t, err, stripe.ErrMissingWebhookSecret)

	p, err := stripe.NewProvider(stripe.Config{SecretKey: "sk_test", WebhookSecret: testSecret})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestProvider_ConstructEvent(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		typ    string
		object string
		want   subscription.Event
	}{
		{
			name:   "checkout session with expanded customer",
			typ:    "checkout.session.completed",
			object: `{"id":"cs_1","object":"checkout.session","customer":{"id":"cus_1","object":"customer"},"subscription":"sub_1","customer_details":{"email":"s@example.com"},"metadata":{}}`,
			want: subscription.Event{
				ID: "evt_1", Type: subscription.EventCheckoutCompleted, CreatedAt: created,
				SubscriptionID: "sub_1", CustomerID: "cus_1", CustomerEmail: "s@example.com",
				Metadata: map[string]string{},
			},
		},
		{
			name:   "one-off checkout without subscription",
			typ:    "checkout.session.completed",
			object: `{"id":"cs_2","object":"checkout.session","customer":"cus_1","subscription":null}`,
			want: subscription.Event{
				ID: "evt_1", Type: subscription.EventCheckoutCompleted, CreatedAt: created,
				CustomerID: "cus_1",
			},
		},
		{
			name:   "subscription updated",
			typ:    "customer.subscription.updated",
			object: `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due","metadata":{"userId":"user-1","plan":"pro"}}`,
			want: subscription.Event{
				ID: "evt_1", Type: subscription.EventSubscriptionUpdated, CreatedAt: created,
				SubscriptionID: "sub_1", CustomerID: "cus_1", Status: "past_due",
				Metadata: map[string]string{"userId": "user-1", "plan": "pro"},
			},
		},
		{
			name:   "invoice payment failed",
			typ:    "invoice.payment_failed",
			object: `{"id":"in_1","object":"invoice","customer":"cus_A","subscription":"sub_9","customer_email":"a@example.com","status":"open"}`,
			want: subscription.Event{
				ID: "evt_1", Type: subscription.EventInvoicePaymentFailed, CreatedAt: created,
				SubscriptionID: "sub_9", CustomerID: "cus_A", CustomerEmail: "a@example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newProvider(t, &mockSubscriptions{})

			payload := eventJSON("evt_1", tt.typ, created.Unix(), tt.object)
			event, err := p.ConstructEvent([]byte(payload), sign(payload, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *event)
		})
	}
}

func TestProvider_ConstructEvent_InvalidSignature(t *testing.T) {
	t.Parallel()

	p := newProvider(t, &mockSubscriptions{})
	payload := eventJSON("evt_1", "customer.subscription.deleted", time.Now().Unix(), `{"id":"sub_1"}`)

	tests := []struct {
		name      string
		payload   string
		signature string
	}{
		{"empty header", payload, ""},
		{"garbage header", payload, "not-a-signature"},
		{"tampered payload", payload + " ", sign(payload, time.Now())},
		{"expired timestamp", payload, sign(payload, time.Now().Add(-time.Hour))},
		{"wrong secret", payload, webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: []byte(payload), Secret: "whsec_other", Timestamp: time.Now(),
		}).Header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.ConstructEvent([]byte(tt.payload), tt.signature)
			assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
		})
	}
}

func TestProvider_GetSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("maps subscription", func(t *testing.T) {
		t.Parallel()
		subs := &mockSubscriptions{}
		subs.On("Get", "sub_1", mock.MatchedBy(func(p *stripego.SubscriptionParams) bool {
			return p.Context == ctx
		})).Return(&stripego.Subscription{
			ID:       "sub_1",
			Customer: &stripego.Customer{ID: "cus_1"},
			Status:   stripego.SubscriptionStatusActive,
			Metadata: map[string]string{"userId": "user-1", "plan": "team"},
		}, nil)

		got, err := newProvider(t, subs).GetSubscription(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, &subscription.ProviderSubscription{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
			Metadata:   map[string]string{"userId": "user-1", "plan": "team"},
		}, got)
		subs.AssertExpectations(t)
	})

	t.Run("propagates api error", func(t *testing.T) {
		t.Parallel()
		apiErr := errors.New("api down")
		subs := &mockSubscriptions{}
		subs.On("Get", "sub_1", mock.Anything).Return(nil, apiErr)

		_, err := newProvider(t, subs).GetSubscription(ctx, "sub_1")
		assert.ErrorIs(t, err, apiErr)
	})
}

func TestProvider_EndToEndWithReconciler(t *testing.T) {
	t.Parallel()

	subs := &mockSubscriptions{}
	subs.On("Get", "sub_1", mock.Anything).Return(&stripego.Subscription{
		ID:       "sub_1",
		Customer: &stripego.Customer{ID: "cus_1"},
		Status:   stripego.SubscriptionStatusActive,
		Metadata: map[string]string{"userId": "user-1", "plan": "pro"},
	}, nil)

	store := subscription.NewMemoryStore()
	rec := subscription.NewReconciler(store, newProvider(t, subs), subscription.WithLedger(store))

	payload := eventJSON("evt_1", "checkout.session.completed", time.Now().Unix(),
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)

	outcome, err := rec.HandleWebhook(context.Background(), []byte(payload), sign(payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, outcome)

	p, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, p.Tier)
	assert.Equal(t, subscription.StatusActive, p.Status)
	assert.Equal(t, "cus_1", p.StripeCustomerID)
}
