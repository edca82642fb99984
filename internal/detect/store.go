package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed subscription and alert store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ActiveSubscriptions returns every active subscription.
func (s *PGStore) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, "active_subscriptions")
	if err != nil {
		return nil, fmt.Errorf("active subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ActiveSubscriptionsForFacility returns active subscriptions for one facility.
func (s *PGStore) ActiveSubscriptionsForFacility(ctx context.Context, facilityID string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, "active_subscriptions_for_facility", facilityID)
	if err != nil {
		return nil, fmt.Errorf("active subscriptions for facility: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// InsertIfAbsent persists the alert unless an alert for the same
// (facility, age class, user) triple already exists inside the dedup window.
// The check-then-insert runs in one transaction serialized by a per-triple
// advisory lock, so overlapping detector runs cannot both insert.
func (s *PGStore) InsertIfAbsent(ctx context.Context, alert Alert, dedupWindow time.Duration) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin alert insert: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := alert.FacilityID + "|" + alert.AgeClass + "|" + alert.UserID
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return false, fmt.Errorf("acquire alert lock: %w", err)
	}

	cutoff := alert.DetectedAt.Add(-dedupWindow)
	tag, err := tx.Exec(ctx, `
		INSERT INTO to_alerts (
			user_id, facility_id, facility_name, age_class,
			estimated_slots, confidence, source, is_read, detected_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, false, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM to_alerts
			WHERE user_id = $1 AND facility_id = $2 AND age_class = $4
			  AND detected_at > $9
		)`,
		alert.UserID, alert.FacilityID, alert.FacilityName, alert.AgeClass,
		alert.EstimatedSlots, alert.Confidence, alert.Source, alert.DetectedAt, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit alert insert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AlertsForUser returns a user's most recent alerts, newest first.
func (s *PGStore) AlertsForUser(ctx context.Context, userID string, limit int) ([]Alert, error) {
	rows, err := s.pool.Query(ctx, "user_alerts", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("alerts for user: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.FacilityID, &a.FacilityName, &a.AgeClass,
			&a.EstimatedSlots, &a.Confidence, &a.Source, &a.IsRead, &a.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UserEmail resolves a user's email address for the dispatcher.
func (s *PGStore) UserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx, "user_email", userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("no email for user %s", userID)
	}
	if err != nil {
		return "", fmt.Errorf("user email: %w", err)
	}
	return email, nil
}

// PurgeReadAlertsBefore deletes read alerts detected before the cutoff and
// returns the number removed.
func (s *PGStore) PurgeReadAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM to_alerts WHERE is_read AND detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.FacilityID, &sub.FacilityName,
			&sub.TargetClasses, &sub.IsActive,
			&sub.Prefs.Push, &sub.Prefs.SMS, &sub.Prefs.Email,
		); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
