// Command jobs is the Jariyo operational CLI for detection and maintenance.
//
// Usage:
//
//	jariyo-jobs detect all
//	jariyo-jobs detect facility --id 11110000123
//	jariyo-jobs diff backfill --facility 11110000123 --limit 500
//	jariyo-jobs cleanup --alert-days 30 --change-days 90
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jariyo/jariyo-data/internal/config"
	"github.com/jariyo/jariyo-data/internal/db"
	"github.com/jariyo/jariyo-data/internal/detect"
	"github.com/jariyo/jariyo-data/internal/snapshot"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "jariyo-jobs",
		Short: "Jariyo detection and maintenance CLI",
	}

	root.AddCommand(detectCmd())
	root.AddCommand(diffCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// detect command
// --------------------------------------------------------------------------

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run turnover detection",
	}
	cmd.AddCommand(detectAllCmd())
	cmd.AddCommand(detectFacilityCmd())
	return cmd
}

func detectAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Sweep all facilities' recent change records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				detector := buildDetector(cfg, pool)
				start := time.Now()
				sum, err := detector.DetectAll(ctx)
				if err != nil {
					return err
				}
				logger.Info("Detection sweep finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"scanned", sum.Scanned,
					"alerts_created", sum.AlertsCreated,
					"emails_queued", sum.EmailsQueued)
				return nil
			})
		},
	}
}

func detectFacilityCmd() *cobra.Command {
	var facilityID string
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Run detection for a single facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			if facilityID == "" {
				return fmt.Errorf("--id is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				detector := buildDetector(cfg, pool)
				sum, err := detector.DetectForFacility(ctx, facilityID)
				if err != nil {
					return err
				}
				logger.Info("Facility detection finished",
					"facility_id", facilityID,
					"scanned", sum.Scanned,
					"alerts_created", sum.AlertsCreated,
					"emails_queued", sum.EmailsQueued)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&facilityID, "id", "", "Facility ID to scan")
	return cmd
}

// --------------------------------------------------------------------------
// diff command
// --------------------------------------------------------------------------

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Snapshot diffing jobs",
	}
	cmd.AddCommand(diffBackfillCmd())
	return cmd
}

func diffBackfillCmd() *cobra.Command {
	var (
		facilityID string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay a facility's stored snapshots through the differ",
		Long: `Replays stored facility snapshots in observation order through the
differ, recreating change records. Use after an outage where ingestion kept
writing snapshots but diffing was down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if facilityID == "" {
				return fmt.Errorf("--facility is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				snapshots := snapshot.NewPGStore(pool.Pool)
				differ := snapshot.NewDiffer(snapshots, snapshots, logger)

				observations, err := snapshots.ObservationsForFacility(ctx, facilityID, limit)
				if err != nil {
					return err
				}
				logger.Info("Backfill starting", "facility_id", facilityID, "snapshots", len(observations))

				diffed, skipped := 0, 0
				for _, obs := range observations {
					rec, err := differ.Diff(ctx, obs)
					if err != nil {
						logger.Warn("backfill diff failed",
							"facility_id", obs.FacilityID, "observed_at", obs.ObservedAt, "error", err)
						continue
					}
					if rec == nil {
						skipped++
					} else {
						diffed++
					}
				}
				logger.Info("Backfill finished",
					"facility_id", facilityID, "diffed", diffed, "skipped", skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&facilityID, "facility", "", "Facility ID to backfill")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Maximum snapshots to replay")
	return cmd
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	var (
		alertDays  int
		changeDays int
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge read alerts and old change records past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				snapshots := snapshot.NewPGStore(pool.Pool)
				alerts := detect.NewPGStore(pool.Pool)
				now := time.Now()

				purgedAlerts, err := alerts.PurgeReadAlertsBefore(ctx, now.AddDate(0, 0, -alertDays))
				if err != nil {
					return err
				}
				purgedChanges, err := snapshots.PurgeChangesBefore(ctx, now.AddDate(0, 0, -changeDays))
				if err != nil {
					return err
				}
				logger.Info("Cleanup finished",
					"alerts_purged", purgedAlerts, "changes_purged", purgedChanges)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&alertDays, "alert-days", 30, "Purge read alerts older than this many days")
	cmd.Flags().IntVar(&changeDays, "change-days", 90, "Purge change records older than this many days")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// buildDetector wires a detector without email dispatch. CLI runs only
// persist alerts; delivery belongs to the API process's dispatcher.
func buildDetector(cfg *config.Config, pool *db.Pool) *detect.Detector {
	snapshots := snapshot.NewPGStore(pool.Pool)
	alerts := detect.NewPGStore(pool.Pool)
	return detect.New(snapshots, alerts, alerts, nil,
		cfg.DetectionLookback, cfg.DedupWindow, logger)
}

// run handles config loading, DB connection, and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
