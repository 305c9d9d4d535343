// Package pg bootstraps the Postgres pool used for profiles and the webhook
// ledger: Connect with retries, goose migrations from an embedded
// filesystem, a readiness probe and pgx error classifiers.
package pg
