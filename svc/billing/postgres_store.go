package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/studyhub/pkg/pg"
	"github.com/dmitrymomot/studyhub/pkg/subscription"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists profiles and the webhook event ledger in Postgres.
// Empty customer and subscription ids are stored as NULL.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store on top of a pgx pool or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	if db == nil {
		panic("billing: database is required")
	}
	return &PostgresStore{db: db}
}

const profileColumns = `id, COALESCE(email, ''), COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
	subscription_tier, subscription_status, last_event_at, updated_at`

const getProfileQuery = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

const findProfileByCustomerQuery = `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1`

const saveProfileQuery = `
INSERT INTO profiles (id, email, stripe_customer_id, stripe_subscription_id,
	subscription_tier, subscription_status, last_event_at, updated_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	email = COALESCE(EXCLUDED.email, profiles.email),
	stripe_customer_id = EXCLUDED.stripe_customer_id,
	stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	subscription_tier = EXCLUDED.subscription_tier,
	subscription_status = EXCLUDED.subscription_status,
	last_event_at = EXCLUDED.last_event_at,
	updated_at = EXCLUDED.updated_at`

// Get loads a profile by user id.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*subscription.Profile, error) {
	return s.scanProfile(s.db.QueryRow(ctx, getProfileQuery, userID))
}

// FindByCustomerID loads the profile linked to a Stripe customer.
func (s *PostgresStore) FindByCustomerID(ctx context.Context, customerID string) (*subscription.Profile, error) {
	if customerID == "" {
		return nil, subscription.ErrProfileNotFound
	}
	return s.scanProfile(s.db.QueryRow(ctx, findProfileByCustomerQuery, customerID))
}

// Save upserts the profile in a single statement so tier and status never
// diverge.
func (s *PostgresStore) Save(ctx context.Context, p *subscription.Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("billing: profile user id is required")
	}

	var lastEventAt *time.Time
	if !p.LastEventAt.IsZero() {
		lastEventAt = &p.LastEventAt
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, saveProfileQuery,
		p.UserID,
		p.Email,
		p.StripeCustomerID,
		p.StripeSubscriptionID,
		string(p.Tier),
		string(p.Status),
		lastEventAt,
		updatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("customer %s already linked to another profile: %w", p.StripeCustomerID, err)
		}
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Seen reports whether the event id is in the ledger.
func (s *PostgresStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_webhook_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event ledger: %w", err)
	}
	return exists, nil
}

// Record adds the event id to the ledger. Recording twice is not an error.
func (s *PostgresStore) Record(ctx context.Context, eventID string, eventType subscription.EventType) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO billing_webhook_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, string(eventType),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// PruneEvents deletes ledger entries processed before cutoff and returns how
// many were removed. Stripe stops redelivering after a few days.
func (s *PostgresStore) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM billing_webhook_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune event ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) scanProfile(row pgx.Row) (*subscription.Profile, error) {
	var (
		p           subscription.Profile
		tier        string
		status      string
		lastEventAt *time.Time
	)
	err := row.Scan(
		&p.UserID,
		&p.Email,
		&p.StripeCustomerID,
		&p.StripeSubscriptionID,
		&tier,
		&status,
		&lastEventAt,
		&p.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p.Tier = subscription.Tier(tier)
	p.Status = subscription.Status(status)
	if lastEventAt != nil {
		p.LastEventAt = lastEventAt.UTC()
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
