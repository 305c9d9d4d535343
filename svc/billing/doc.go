// Package billing holds the production adapters behind subscription
// reconciliation: the Postgres profile store and event ledger, the Redis
// per-user lock, and the job that prunes old ledger entries.
package billing
