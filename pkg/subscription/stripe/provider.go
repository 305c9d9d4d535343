package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/dmitrymomot/studyhub/pkg/subscription"
)

// SubscriptionGetter is the part of the Stripe API client the provider uses.
// *subscription.Client from stripe-go satisfies it.
type SubscriptionGetter interface {
	Get(id string, params *stripego.SubscriptionParams) (*stripego.Subscription, error)
}

// Provider implements subscription.BillingProvider on top of stripe-go.
type Provider struct {
	subscriptions SubscriptionGetter
	webhookSecret string
	tolerance     time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithSubscriptionGetter replaces the Stripe API client, e.g. with a fake in tests.
func WithSubscriptionGetter(g SubscriptionGetter) Option {
	return func(p *Provider) {
		if g != nil {
			p.subscriptions = g
		}
	}
}

// NewProvider creates a Stripe billing provider.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrMissingSecretKey
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, ErrMissingWebhookSecret
	}

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	p := &Provider{
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.subscriptions == nil {
		p.subscriptions = client.New(cfg.SecretKey, nil).Subscriptions
	}

	return p, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Events signed for a different API version are accepted; only the fields
// reconciliation reads are decoded.
func (p *Provider) ConstructEvent(payload []byte, signature string) (*subscription.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(subscription.ErrInvalidSignature, err)
	}

	return decodeEvent(event)
}

// GetSubscription fetches the subscription with the metadata set at checkout.
func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*subscription.ProviderSubscription, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription: %w", err)
	}

	out := &subscription.ProviderSubscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}
