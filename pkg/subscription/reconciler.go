package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

// Reconciler applies provider events to profiles.
//
// Every transition overwrites the fields it owns, so replaying an event
// yields the same profile. Events for the same user are serialized through
// the Locker, and events older than the last applied one are skipped.
type Reconciler struct {
	store      ProfileStore
	provider   BillingProvider
	locker     Locker
	ledger     EventLedger
	notifier   Notifier
	staleGuard bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewReconciler creates a Reconciler.
// Panics if store or provider is nil.
func NewReconciler(store ProfileStore, provider BillingProvider, opts ...Option) *Reconciler {
	if store == nil {
		panic("subscription: ProfileStore is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}

	r := &Reconciler{
		store:      store,
		provider:   provider,
		locker:     NewKeyedMutex(),
		staleGuard: true,
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// HandleWebhook verifies and applies a raw webhook delivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, err := r.provider.ConstructEvent(payload, signature)
	if err != nil {
		return "", err
	}
	return r.Apply(ctx, event)
}

// Apply performs the profile mutation for event.
//
// Unknown event types and events that cannot be attributed to a user are
// acknowledged without changes. Errors are returned only for provider and
// store failures, which the provider is expected to redeliver.
func (r *Reconciler) Apply(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil {
		return "", ErrInvalidEvent
	}

	log := r.logger.With(
		logger.Component("subscription"),
		logger.EventID(event.ID),
		logger.EventType(string(event.Type)),
	)

	// Checked again under the user lock before any write.
	seen, err := r.seen(ctx, event)
	if err != nil {
		return "", err
	}
	if seen {
		log.InfoContext(ctx, "duplicate event skipped")
		return OutcomeDuplicate, nil
	}

	var outcome Outcome
	switch event.Type {
	case EventCheckoutCompleted:
		outcome, err = r.applyCheckoutCompleted(ctx, log, event)
	case EventSubscriptionUpdated:
		outcome, err = r.applySubscriptionUpdated(ctx, log, event)
	case EventSubscriptionDeleted:
		outcome, err = r.applySubscriptionDeleted(ctx, log, event)
	case EventInvoicePaymentFailed:
		outcome, err = r.applyPaymentFailed(ctx, log, event)
	default:
		log.DebugContext(ctx, "unhandled event type")
		return OutcomeIgnored, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to apply event", logger.Error(err))
		return "", err
	}

	log.InfoContext(ctx, "event reconciled", slog.String("outcome", string(outcome)))
	return outcome, nil
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, log *slog.Logger, event *Event) (Outcome, error) {
	if event.SubscriptionID == "" || event.CustomerID == "" {
		// One-off payments complete a checkout without a subscription.
		log.InfoContext(ctx, "checkout without subscription ignored")
		return OutcomeIgnored, nil
	}

	sub, err := r.provider.GetSubscription(ctx, event.SubscriptionID)
	if err == nil && sub == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		return "", errors.Join(ErrProviderFailure, fmt.Errorf("get subscription %s: %w", event.SubscriptionID, err))
	}

	userID := metadataValue(MetadataUserID, sub.Metadata, event.Metadata)
	if userID == "" {
		log.WarnContext(ctx, "checkout subscription has no user id in metadata",
			logger.SubscriptionID(event.SubscriptionID),
		)
		return OutcomeIgnored, nil
	}
	tier := MapPlan(metadataValue(MetadataPlan, sub.Metadata, event.Metadata))

	return r.mutate(ctx, log, event, mutation{
		userID: userID,
		create: true,
		apply: func(p *Profile) {
			p.StripeCustomerID = event.CustomerID
			p.StripeSubscriptionID = event.SubscriptionID
			p.Tier = tier
			p.Status = StatusActive
			if p.Email == "" {
				p.Email = event.CustomerEmail
			}
		},
		// Stripe may deliver customer.subscription.updated before the
		// checkout. Later events find the customer only through these ids.
		link: func(p *Profile) bool {
			changed := false
			if p.StripeCustomerID == "" {
				p.StripeCustomerID = event.CustomerID
				changed = true
			}
			if p.StripeSubscriptionID == "" && p.Status != StatusCanceled {
				p.StripeSubscriptionID = event.SubscriptionID
				changed = true
			}
			if p.Email == "" && event.CustomerEmail != "" {
				p.Email = event.CustomerEmail
				changed = true
			}
			return changed
		},
	})
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, log *slog.Logger, event *Event) (Outcome, error) {
	userID := event.Metadata[MetadataUserID]
	if userID == "" {
		log.WarnContext(ctx, "subscription update has no user id in metadata",
			logger.SubscriptionID(event.SubscriptionID),
		)
		return OutcomeIgnored, nil
	}

	status := MapStatus(event.Status)
	tier := MapPlan(event.Metadata[MetadataPlan])

	return r.mutate(ctx, log, event, mutation{
		userID: userID,
		create: true,
		apply: func(p *Profile) {
			p.Tier = tier
			p.Status = status
		},
	})
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, log *slog.Logger, event *Event) (Outcome, error) {
	userID := event.Metadata[MetadataUserID]
	if userID == "" {
		log.WarnContext(ctx, "subscription deletion has no user id in metadata",
			logger.SubscriptionID(event.SubscriptionID),
		)
		return OutcomeIgnored, nil
	}

	// The customer survives cancellation so a resubscribe reuses it.
	return r.mutate(ctx, log, event, mutation{
		userID: userID,
		create: true,
		apply: func(p *Profile) {
			p.Tier = TierFree
			p.Status = StatusCanceled
			p.StripeSubscriptionID = ""
		},
	})
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, log *slog.Logger, event *Event) (Outcome, error) {
	if event.CustomerID == "" {
		log.WarnContext(ctx, "payment failure without customer ignored")
		return OutcomeIgnored, nil
	}

	found, err := r.store.FindByCustomerID(ctx, event.CustomerID)
	if errors.Is(err, ErrProfileNotFound) {
		log.InfoContext(ctx, "payment failure for unknown customer", logger.CustomerID(event.CustomerID))
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", errors.Join(ErrStoreFailure, err)
	}

	var updated *Profile
	outcome, err := r.mutate(ctx, log, event, mutation{
		userID: found.UserID,
		apply: func(p *Profile) {
			p.Status = StatusPastDue
			updated = p
		},
	})
	if err != nil || outcome != OutcomeApplied {
		return outcome, err
	}

	if r.notifier != nil {
		if err := r.notifier.PaymentFailed(ctx, updated); err != nil {
			log.WarnContext(ctx, "failed to notify about payment failure",
				logger.UserID(updated.UserID),
				logger.Error(err),
			)
		}
	}

	return outcome, nil
}

// mutation is one read-modify-write of a profile.
type mutation struct {
	userID string
	// create starts from NewProfile when the profile is missing.
	// Otherwise a missing profile is a not-found no-op.
	create bool
	apply  func(*Profile)
	// link, when set, runs on a stale event instead of skipping it. It may
	// only fill fields the stale event owns and reports whether any changed.
	link func(*Profile) bool
}

// mutate applies m under the user lock. The duplicate check and the ledger
// record happen while the lock is held, so concurrent deliveries of one
// event id produce a single write.
func (r *Reconciler) mutate(ctx context.Context, log *slog.Logger, event *Event, m mutation) (Outcome, error) {
	unlock, err := r.locker.Lock(ctx, m.userID)
	if err != nil {
		return "", errors.Join(ErrLockFailed, err)
	}
	defer unlock()

	seen, err := r.seen(ctx, event)
	if err != nil {
		return "", err
	}
	if seen {
		log.InfoContext(ctx, "duplicate event skipped", logger.UserID(m.userID))
		return OutcomeDuplicate, nil
	}

	profile, err := r.store.Get(ctx, m.userID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		if !m.create {
			log.InfoContext(ctx, "profile disappeared before update", logger.UserID(m.userID))
			return OutcomeNotFound, nil
		}
		profile = NewProfile(m.userID)
	case err != nil:
		return "", errors.Join(ErrStoreFailure, err)
	}

	if r.staleGuard && !event.CreatedAt.IsZero() && event.CreatedAt.Before(profile.LastEventAt) {
		if m.link == nil || !m.link(profile) {
			log.InfoContext(ctx, "stale event skipped",
				logger.UserID(m.userID),
				slog.Time("event_created_at", event.CreatedAt),
				slog.Time("last_event_at", profile.LastEventAt),
			)
			return OutcomeStale, nil
		}
		// Tier and status stay with the newer event.
		log.InfoContext(ctx, "stale event linked provider ids", logger.UserID(m.userID))
	} else {
		m.apply(profile)
		if event.CreatedAt.After(profile.LastEventAt) {
			profile.LastEventAt = event.CreatedAt
		}
	}
	profile.UpdatedAt = r.now().UTC()

	if err := r.store.Save(ctx, profile); err != nil {
		return "", errors.Join(ErrStoreFailure, fmt.Errorf("save profile %s: %w", m.userID, err))
	}

	if r.ledger != nil && event.ID != "" {
		// Profile is saved; a redelivery re-applies the same overwrite.
		if err := r.ledger.Record(ctx, event.ID, event.Type); err != nil {
			log.WarnContext(ctx, "failed to record event", logger.Error(err))
		}
	}

	log.DebugContext(ctx, "profile updated",
		logger.UserID(m.userID),
		slog.String("tier", string(profile.Tier)),
		slog.String("status", string(profile.Status)),
	)
	return OutcomeApplied, nil
}

// seen reports whether the ledger already holds event.
func (r *Reconciler) seen(ctx context.Context, event *Event) (bool, error) {
	if r.ledger == nil || event.ID == "" {
		return false, nil
	}
	seen, err := r.ledger.Seen(ctx, event.ID)
	if err != nil {
		return false, errors.Join(ErrLedgerFailure, err)
	}
	return seen, nil
}

func metadataValue(key string, sources ...map[string]string) string {
	for _, m := range sources {
		if v := m[key]; v != "" {
			return v
		}
	}
	return ""
}
