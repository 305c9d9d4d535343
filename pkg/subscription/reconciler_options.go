package subscription

import (
	"log/slog"
	"time"
)

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.logger = log
		}
	}
}

// WithLocker replaces the in-process KeyedMutex, e.g. with a Redis lock when
// several replicas receive webhooks.
func WithLocker(l Locker) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithLedger enables duplicate delivery detection by event id.
func WithLedger(l EventLedger) Option {
	return func(r *Reconciler) {
		r.ledger = l
	}
}

// WithNotifier sets who is told about failed payments.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithStaleEventGuard toggles skipping of events older than the last applied
// one for the same profile. Enabled by default.
func WithStaleEventGuard(enabled bool) Option {
	return func(r *Reconciler) {
		r.staleGuard = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
