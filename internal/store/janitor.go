package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTempMaxAge is how old a temp file must be before the janitor
// considers it orphaned. Live appends finish well within this window.
const DefaultTempMaxAge = time.Hour

// TempSweeper removes orphaned temporary artifacts.
type TempSweeper interface {
	SweepTemp(maxAge time.Duration) (int, error)
}

// StartJanitor runs a background goroutine that periodically sweeps temp
// files left behind by processes that died mid-append.
func StartJanitor(ctx context.Context, sweeper TempSweeper, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = DefaultTempMaxAge
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Store janitor started", "interval", interval, "max_age", maxAge)

		sweepOnce(sweeper, maxAge)
		for {
			select {
			case <-ticker.C:
				sweepOnce(sweeper, maxAge)
			case <-ctx.Done():
				slog.Info("Store janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(sweeper TempSweeper, maxAge time.Duration) {
	removed, err := sweeper.SweepTemp(maxAge)
	if err != nil {
		slog.Error("Store janitor sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Store janitor removed orphaned temp files", "count", removed)
	}
}
