package subscription

import "errors"

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrInvalidEvent     = errors.New("invalid billing event")
	ErrProfileNotFound  = errors.New("profile not found")

	ErrProviderFailure = errors.New("billing provider request failed")
	ErrStoreFailure    = errors.New("profile store failure")
	ErrLedgerFailure   = errors.New("event ledger failure")
	ErrLockFailed      = errors.New("failed to acquire profile lock")
)
