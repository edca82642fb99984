// Package listener provides a Postgres LISTEN/NOTIFY consumer for real-time
// turnover detection. It holds a dedicated pgx connection (not from the
// pool) listening on the `facility_snapshot_added` channel.
//
// The ingestion pipeline's insert trigger fires pg_notify after a facility
// snapshot lands; this consumer receives the event and runs facility-scoped
// detection immediately, instead of waiting for the next scheduled sweep.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jariyo/jariyo-data/internal/detect"
)

const (
	channel          = "facility_snapshot_added"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// SnapshotEvent is the JSON payload from pg_notify('facility_snapshot_added', ...).
type SnapshotEvent struct {
	FacilityID string `json:"facility_id"`
	ObservedAt int64  `json:"observed_at"`
}

// Start opens a dedicated connection and listens on the snapshot channel.
// It reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, detector *detect.Detector, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, detector, logger)
		if ctx.Err() != nil {
			logger.Info("Snapshot listener stopped (context cancelled)")
			return
		}

		logger.Error("Snapshot listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, detector *detect.Detector, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Snapshot listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var event SnapshotEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			logger.Warn("Failed to parse snapshot event",
				"payload", notification.Payload, "error", err)
			continue
		}
		if event.FacilityID == "" {
			logger.Warn("Snapshot event missing facility id", "payload", notification.Payload)
			continue
		}

		logger.Info("Snapshot event received", "facility_id", event.FacilityID)

		// Process asynchronously to avoid blocking the listener. Overlap with
		// a scheduled sweep is safe: alert inserts dedup per triple.
		go func(facilityID string) {
			sum, err := detector.DetectForFacility(ctx, facilityID)
			if err != nil {
				logger.Warn("Snapshot-triggered detection failed",
					"facility_id", facilityID, "error", err)
				return
			}
			if sum.AlertsCreated > 0 {
				logger.Info("Snapshot-triggered detection complete",
					"facility_id", facilityID,
					"scanned", sum.Scanned,
					"alerts_created", sum.AlertsCreated)
			}
		}(event.FacilityID)
	}
}
