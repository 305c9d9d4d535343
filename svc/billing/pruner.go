package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

// EventPruner removes ledger entries older than a cutoff.
type EventPruner interface {
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunLedgerPruner deletes ledger entries older than retention every interval
// until ctx is done. A non-positive interval or retention disables it.
func RunLedgerPruner(ctx context.Context, p EventPruner, retention, interval time.Duration, log *slog.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(logger.Component("billing_ledger_pruner"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PruneEvents(ctx, now.Add(-retention))
			if err != nil {
				log.ErrorContext(ctx, "failed to prune webhook ledger", logger.Error(err))
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "pruned webhook ledger", slog.Int64("deleted", n))
			}
		}
	}
}
