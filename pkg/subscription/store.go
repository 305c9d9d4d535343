package subscription

import "context"

// ProfileStore persists profiles keyed by user id.
type ProfileStore interface {
	// Get returns ErrProfileNotFound if the user has no profile.
	Get(ctx context.Context, userID string) (*Profile, error)

	// FindByCustomerID returns ErrProfileNotFound if no profile carries customerID.
	FindByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// Save upserts the profile by UserID. Tier and status are written together.
	Save(ctx context.Context, profile *Profile) error
}

// EventLedger remembers provider event ids that were already applied.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, eventType EventType) error
}

// Notifier tells users about billing changes that need their attention.
type Notifier interface {
	PaymentFailed(ctx context.Context, profile *Profile) error
}
