// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jariyo/jariyo-data/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the API, differ, and
// detector use. Prepared statements eliminate parse overhead on every call.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Differ: prior snapshot lookup (only snapshots with a known
		// enrolled count can anchor a diff)
		"latest_snapshot_before": `
			SELECT facility_id, facility_name, capacity_current, capacity_by_age, snapshot_date
			FROM facility_snapshots
			WHERE facility_id = $1 AND snapshot_date < $2 AND capacity_current IS NOT NULL
			ORDER BY snapshot_date DESC
			LIMIT 1`,

		// Differ: change record insert
		"insert_change_record": `
			INSERT INTO waitlist_snapshots (facility_id, snapshot_date, waitlist_by_class, enrolled_delta, to_detected)
			VALUES ($1, $2, $3, $4, $5)`,

		// Detector: candidates (signal must be known; first observations
		// carry NULL and are never candidates)
		"changes_in_window": `
			SELECT facility_id, snapshot_date, waitlist_by_class, enrolled_delta, to_detected
			FROM waitlist_snapshots
			WHERE snapshot_date >= $1 AND to_detected IS NOT NULL
			ORDER BY snapshot_date`,
		"changes_for_facility": `
			SELECT facility_id, snapshot_date, waitlist_by_class, enrolled_delta, to_detected
			FROM waitlist_snapshots
			WHERE facility_id = $1 AND snapshot_date >= $2 AND to_detected IS NOT NULL
			ORDER BY snapshot_date`,

		// Detector: subscriptions
		"active_subscriptions": `
			SELECT id, user_id, facility_id, facility_name, target_classes, is_active,
			       notify_push, notify_sms, notify_email
			FROM to_subscriptions
			WHERE is_active`,
		"active_subscriptions_for_facility": `
			SELECT id, user_id, facility_id, facility_name, target_classes, is_active,
			       notify_push, notify_sms, notify_email
			FROM to_subscriptions
			WHERE is_active AND facility_id = $1`,

		// API: user alerts
		"user_alerts": `
			SELECT id, user_id, facility_id, facility_name, age_class,
			       estimated_slots, confidence, source, is_read, detected_at
			FROM to_alerts
			WHERE user_id = $1
			ORDER BY detected_at DESC
			LIMIT $2`,

		// Dispatch: recipient lookup
		"user_email": "SELECT email FROM users WHERE id = $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
