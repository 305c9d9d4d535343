package subscription

import (
	"strings"
	"time"
)

// Tier is the paid plan level a user has access to.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierTeam    Tier = "team"
)

// Status is the billing state of a user's subscription.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// EventType is the provider event name.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
)

// Metadata keys the application attaches to provider subscriptions at checkout.
const (
	MetadataUserID = "userId"
	MetadataPlan   = "plan"
)

// Profile is the billing projection of a user account.
// Empty StripeCustomerID or StripeSubscriptionID means "not set".
type Profile struct {
	UserID               string
	Email                string
	StripeCustomerID     string
	StripeSubscriptionID string
	Tier                 Tier
	Status               Status
	// LastEventAt is the creation time of the newest provider event applied.
	LastEventAt time.Time
	UpdatedAt   time.Time
}

// NewProfile returns the initial state of a user who never paid.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID: userID,
		Tier:   TierFree,
		Status: StatusInactive,
	}
}

// IsPaid reports whether the profile currently grants a paid tier.
func (p *Profile) IsPaid() bool {
	return p.Tier != TierFree && (p.Status == StatusActive || p.Status == StatusPastDue)
}

// Event is a verified provider event reduced to the fields reconciliation needs.
type Event struct {
	ID             string
	Type           EventType
	CreatedAt      time.Time
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	// Status is the raw provider subscription status.
	Status   string
	Metadata map[string]string
}

// ProviderSubscription is a subscription fetched from the billing provider.
type ProviderSubscription struct {
	ID         string
	CustomerID string
	Status     string
	Metadata   map[string]string
}

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
)

// MapPlan converts a plan name from checkout metadata to a tier.
// Unknown or missing plans map to starter: the user has paid for something.
func MapPlan(plan string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(plan))) {
	case TierPro:
		return TierPro
	case TierTeam:
		return TierTeam
	default:
		return TierStarter
	}
}

// MapStatus converts a provider subscription status to an internal status.
// Statuses without a paid meaning map to inactive.
func MapStatus(providerStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	default:
		return StatusInactive
	}
}
