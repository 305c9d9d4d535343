package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studyhub/pkg/logger"
)

// RunSweeper periodically removes expired counters from store until ctx is
// cancelled. Sweep failures are logged and retried on the next tick.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, log *slog.Logger) {
	if store == nil {
		panic("ratelimit.RunSweeper: store is required")
	}
	if interval <= 0 {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.SweepExpired(ctx, now)
			if err != nil {
				log.WarnContext(ctx, "rate limit sweep failed",
					logger.Component("ratelimit"),
					logger.Error(err),
				)
				continue
			}
			if removed > 0 {
				log.DebugContext(ctx, "swept expired rate limit counters",
					logger.Component("ratelimit"),
					slog.Int("removed", removed),
				)
			}
		}
	}
}
