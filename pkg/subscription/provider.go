package subscription

import "context"

// BillingProvider is the payment provider as seen by the reconciler.
// Implementations use the provider SDK and hide its wire formats.
type BillingProvider interface {
	// ConstructEvent verifies the signature of a raw webhook payload and
	// decodes it. Verification failures wrap ErrInvalidSignature.
	ConstructEvent(payload []byte, signature string) (*Event, error)

	// GetSubscription fetches the full subscription, including the metadata
	// written at checkout.
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
