package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotSource looks up prior facility snapshots.
type SnapshotSource interface {
	// LatestBefore returns the most recent observation for the facility
	// strictly before the given time that carries an enrolled count, or nil
	// when the facility has no usable history.
	LatestBefore(ctx context.Context, facilityID string, before time.Time) (*Observation, error)
}

// ChangeSink persists change records.
type ChangeSink interface {
	InsertChange(ctx context.Context, rec ChangeRecord) error
}

// Differ computes and persists change records from observations.
type Differ struct {
	snapshots SnapshotSource
	changes   ChangeSink
	logger    *slog.Logger
}

// NewDiffer creates a Differ with explicit store dependencies.
func NewDiffer(snapshots SnapshotSource, changes ChangeSink, logger *slog.Logger) *Differ {
	return &Differ{snapshots: snapshots, changes: changes, logger: logger}
}

// Diff compares an observation against the facility's previous snapshot and
// persists the resulting change record. Observations without an enrolled
// count are skipped entirely: (nil, nil). A first-ever observation yields a
// zero delta with an unknown signal.
func (d *Differ) Diff(ctx context.Context, obs Observation) (*ChangeRecord, error) {
	if obs.CapacityCurrent == nil {
		d.logger.Debug("Observation has no enrolled count, skipping diff",
			"facility_id", obs.FacilityID, "observed_at", obs.ObservedAt)
		return nil, nil
	}

	prior, err := d.snapshots.LatestBefore(ctx, obs.FacilityID, obs.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", obs.FacilityID, err)
	}

	change := Change{Signal: SignalUnknown}
	if prior != nil && prior.CapacityCurrent != nil {
		change.EnrolledDelta = *obs.CapacityCurrent - *prior.CapacityCurrent
		if change.EnrolledDelta < 0 {
			change.Signal = SignalPresent
		} else {
			change.Signal = SignalNone
		}
	}

	rec := ChangeRecord{
		FacilityID:      obs.FacilityID,
		ObservedAt:      obs.ObservedAt,
		WaitlistByClass: waitlistFromCapacity(obs.CapacityByAge),
		Change:          change,
	}

	if err := d.changes.InsertChange(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert change record: %w", err)
	}

	d.logger.Info("Change record created",
		"facility_id", rec.FacilityID,
		"enrolled_delta", change.EnrolledDelta,
		"signal", change.Signal.String())
	return &rec, nil
}
