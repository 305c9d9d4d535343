package stripe

import "errors"

var (
	ErrMissingSecretKey     = errors.New("stripe secret key is required")
	ErrMissingWebhookSecret = errors.New("stripe webhook secret is required")
	ErrMalformedEvent       = errors.New("malformed stripe event payload")
)
