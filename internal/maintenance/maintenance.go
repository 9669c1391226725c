// Package maintenance runs the agent's background upkeep loops: sweeping
// stale requests, flushing protocol fees to buyback, claiming staking
// rewards, and a periodic domain rebalance hook. Each loop owns its own
// ticker and failure sink so one loop's error never stalls another's.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobbyswhip/x402c/internal/metrics"
)

// Loop is one independently-scheduled maintenance task.
type Loop struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context) error
	// RunAtStart, if true, executes one tick immediately instead of
	// waiting for the first interval to elapse (the hook manager's
	// "runs once at startup" requirement).
	RunAtStart bool
}

// Run executes l.Tick on l.Interval until ctx is cancelled. A failing tick
// is logged and counted, never propagated — per-loop failure isolation is
// the whole point of running four of these independently.
func (l Loop) Run(ctx context.Context, logger *slog.Logger) error {
	logger = logger.With("component", "maintenance", "loop", l.Name)
	logger.Info("maintenance loop started", "interval", l.Interval)

	if l.RunAtStart {
		l.runTick(ctx, logger)
	}

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance loop stopping")
			return ctx.Err()
		case <-ticker.C:
			l.runTick(ctx, logger)
		}
	}
}

func (l Loop) runTick(ctx context.Context, logger *slog.Logger) {
	start := time.Now()
	err := l.Tick(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Warn("maintenance tick failed", "error", err, "duration", time.Since(start))
	} else {
		metrics.SweeperLastRunUnix.WithLabelValues(l.Name).Set(float64(time.Now().Unix()))
	}
	metrics.SweeperRunsTotal.WithLabelValues(l.Name, outcome).Inc()
}
