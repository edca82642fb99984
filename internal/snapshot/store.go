package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed snapshot and change-record store. It
// implements SnapshotSource and ChangeSink for the differ and serves change
// records to the detector and the read API.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// InsertObservation persists one facility snapshot as delivered by ingestion.
func (s *PGStore) InsertObservation(ctx context.Context, obs Observation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO facility_snapshots (facility_id, facility_name, capacity_current, capacity_by_age, snapshot_date)
		VALUES ($1, $2, $3, $4, $5)`,
		obs.FacilityID, obs.FacilityName, obs.CapacityCurrent, obs.CapacityByAge, obs.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert facility snapshot: %w", err)
	}
	return nil
}

// LatestBefore returns the facility's most recent snapshot strictly before
// the given time that carries an enrolled count, or nil when none exists.
func (s *PGStore) LatestBefore(ctx context.Context, facilityID string, before time.Time) (*Observation, error) {
	var obs Observation
	err := s.pool.QueryRow(ctx, "latest_snapshot_before", facilityID, before).Scan(
		&obs.FacilityID, &obs.FacilityName, &obs.CapacityCurrent, &obs.CapacityByAge, &obs.ObservedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot before: %w", err)
	}
	return &obs, nil
}

// ObservationsForFacility returns a facility's snapshots in ascending
// timestamp order, capped at limit. Used by the backfill job.
func (s *PGStore) ObservationsForFacility(ctx context.Context, facilityID string, limit int) ([]Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT facility_id, facility_name, capacity_current, capacity_by_age, snapshot_date
		FROM facility_snapshots
		WHERE facility_id = $1
		ORDER BY snapshot_date ASC
		LIMIT $2`, facilityID, limit)
	if err != nil {
		return nil, fmt.Errorf("observations for facility: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// InsertChange persists one change record.
func (s *PGStore) InsertChange(ctx context.Context, rec ChangeRecord) error {
	_, err := s.pool.Exec(ctx, "insert_change_record",
		rec.FacilityID, rec.ObservedAt, rec.WaitlistByClass,
		rec.Change.EnrolledDelta, rec.Change.Signal.Bool(),
	)
	if err != nil {
		return fmt.Errorf("insert change record: %w", err)
	}
	return nil
}

// ChangesInWindow returns change records observed at or after since whose
// signal is known (true or false). First-observation records carry no signal
// and are never detection candidates.
func (s *PGStore) ChangesInWindow(ctx context.Context, since time.Time) ([]ChangeRecord, error) {
	rows, err := s.pool.Query(ctx, "changes_in_window", since)
	if err != nil {
		return nil, fmt.Errorf("changes in window: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// ChangesForFacility is ChangesInWindow restricted to one facility.
func (s *PGStore) ChangesForFacility(ctx context.Context, facilityID string, since time.Time) ([]ChangeRecord, error) {
	rows, err := s.pool.Query(ctx, "changes_for_facility", facilityID, since)
	if err != nil {
		return nil, fmt.Errorf("changes for facility: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// PurgeChangesBefore deletes change records observed before the cutoff and
// returns the number removed.
func (s *PGStore) PurgeChangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM waitlist_snapshots WHERE snapshot_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge change records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanObservations(rows pgx.Rows) ([]Observation, error) {
	var out []Observation
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.FacilityID, &obs.FacilityName, &obs.CapacityCurrent, &obs.CapacityByAge, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func scanChanges(rows pgx.Rows) ([]ChangeRecord, error) {
	var out []ChangeRecord
	for rows.Next() {
		var (
			rec      ChangeRecord
			detected *bool
		)
		if err := rows.Scan(&rec.FacilityID, &rec.ObservedAt, &rec.WaitlistByClass, &rec.Change.EnrolledDelta, &detected); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		rec.Change.Signal = SignalFromBool(detected)
		out = append(out, rec)
	}
	return out, rows.Err()
}
