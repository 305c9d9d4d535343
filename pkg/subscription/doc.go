// Package subscription keeps user billing profiles in sync with the payment
// provider.
//
// The provider is the source of truth for who pays for what. It reports
// changes through webhooks, and the Reconciler projects each event onto a
// Profile (tier plus status):
//
//	checkout.session.completed     -> tier from plan metadata, status active
//	customer.subscription.updated  -> tier and status from the subscription
//	customer.subscription.deleted  -> free, canceled, subscription id cleared
//	invoice.payment_failed         -> status past_due, profile found by customer id
//
// Any other event type is acknowledged without changes.
//
// # Ordering and duplicates
//
// Every transition overwrites the fields it owns, so redelivery is harmless.
// On top of that the Reconciler:
//
//   - serializes work per user through a Locker (KeyedMutex in process,
//     a Redis lock across replicas)
//   - skips events created before the last event applied to the profile
//     (WithStaleEventGuard)
//   - skips event ids already recorded in an EventLedger (WithLedger)
//
// # Usage
//
//	provider, err := stripe.NewProvider(cfg)
//	if err != nil {
//		return err
//	}
//
//	rec := subscription.NewReconciler(store, provider,
//		subscription.WithLogger(log),
//		subscription.WithLedger(store),
//	)
//	r.Post("/api/webhooks/stripe", subscription.NewWebhookHandler(rec, log).ServeHTTP)
//
// # Error Handling
//
// Signature failures wrap ErrInvalidSignature and map to HTTP 400. Provider
// and store failures wrap ErrProviderFailure or ErrStoreFailure and map to
// HTTP 500 so the provider redelivers the event. Events that cannot be tied
// to a user, and payment failures for unknown customers, are logged and
// acknowledged.
package subscription
