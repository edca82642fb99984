// Package maintenance runs periodic background tasks as Go tickers.
// The detection sweep replaces an external cron: the API process is already
// persistent and long-running (required for LISTEN/NOTIFY), so scheduled
// work is driven from Go.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jariyo/jariyo-data/internal/detect"
	"github.com/jariyo/jariyo-data/internal/snapshot"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	SweepInterval   time.Duration // global detection sweep cadence
	CleanupInterval time.Duration // retention purges
	AlertRetention  time.Duration
	ChangeRetention time.Duration
}

// DefaultConfig returns sensible production defaults. The sweep interval
// must not exceed the detection lookback window or records can slip through
// unscanned.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   1 * time.Hour,
		CleanupInterval: 6 * time.Hour,
		AlertRetention:  30 * 24 * time.Hour,
		ChangeRetention: 90 * 24 * time.Hour,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, detector *detect.Detector, snapshots *snapshot.PGStore, alerts *detect.PGStore, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"sweep", cfg.SweepInterval,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Sweep: scheduled global detection run
	if cfg.SweepInterval > 0 {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { sweep(ctx, detector, logger) })
	}

	// Cleanup: purge read alerts and old change records past retention
	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { cleanup(ctx, snapshots, alerts, cfg, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func sweep(ctx context.Context, detector *detect.Detector, logger *slog.Logger) {
	sum, err := detector.DetectAll(ctx)
	if err != nil {
		logger.Error("Scheduled detection sweep failed", "error", err)
		return
	}
	if sum.Scanned > 0 {
		logger.Info("Scheduled detection sweep",
			"scanned", sum.Scanned,
			"alerts_created", sum.AlertsCreated,
			"emails_queued", sum.EmailsQueued)
	}
}

func cleanup(ctx context.Context, snapshots *snapshot.PGStore, alerts *detect.PGStore, cfg Config, logger *slog.Logger) {
	now := time.Now()

	if cfg.AlertRetention > 0 {
		n, err := alerts.PurgeReadAlertsBefore(ctx, now.Add(-cfg.AlertRetention))
		if err != nil {
			logger.Error("Alert purge failed", "error", err)
		} else if n > 0 {
			logger.Info("Purged read alerts", "count", n)
		}
	}

	if cfg.ChangeRetention > 0 {
		n, err := snapshots.PurgeChangesBefore(ctx, now.Add(-cfg.ChangeRetention))
		if err != nil {
			logger.Error("Change record purge failed", "error", err)
		} else if n > 0 {
			logger.Info("Purged old change records", "count", n)
		}
	}
}
