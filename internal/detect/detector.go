package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jariyo/jariyo-data/internal/snapshot"
)

// ChangeSource serves detection candidates: change records with a known
// signal observed inside the lookback window.
type ChangeSource interface {
	ChangesInWindow(ctx context.Context, since time.Time) ([]snapshot.ChangeRecord, error)
	ChangesForFacility(ctx context.Context, facilityID string, since time.Time) ([]snapshot.ChangeRecord, error)
}

// SubscriptionSource serves active subscriptions.
type SubscriptionSource interface {
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	ActiveSubscriptionsForFacility(ctx context.Context, facilityID string) ([]Subscription, error)
}

// AlertStore persists alerts. InsertIfAbsent must be atomic per
// (facility, age class, user) triple: overlapping detector runs may race on
// the same triple and exactly one insert wins inside the dedup window.
type AlertStore interface {
	InsertIfAbsent(ctx context.Context, alert Alert, dedupWindow time.Duration) (bool, error)
}

// Dispatcher hands created alerts off for asynchronous email delivery.
// Delivery is best-effort; the return value counts accepted handoffs only.
type Dispatcher interface {
	SendAlertEmails(ctx context.Context, alerts []Alert) int
}

// Detector cross-matches change records against subscriptions and emits
// deduplicated alerts.
type Detector struct {
	changes    ChangeSource
	subs       SubscriptionSource
	alerts     AlertStore
	dispatcher Dispatcher
	lookback   time.Duration
	dedup      time.Duration
	logger     *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Detector. dispatcher may be nil when email delivery is
// disabled; alerts are still persisted.
func New(changes ChangeSource, subs SubscriptionSource, alerts AlertStore, dispatcher Dispatcher, lookback, dedup time.Duration, logger *slog.Logger) *Detector {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if dedup <= 0 {
		dedup = DefaultDedup
	}
	return &Detector{
		changes:    changes,
		subs:       subs,
		alerts:     alerts,
		dispatcher: dispatcher,
		lookback:   lookback,
		dedup:      dedup,
		logger:     logger,
		now:        time.Now,
	}
}

// DetectAll sweeps every facility's recent change records.
func (d *Detector) DetectAll(ctx context.Context) (Summary, error) {
	return d.run(ctx, "")
}

// DetectForFacility runs the same algorithm restricted to one facility.
// Intended for the synchronous path right after that facility's diff.
func (d *Detector) DetectForFacility(ctx context.Context, facilityID string) (Summary, error) {
	if facilityID == "" {
		return Summary{}, fmt.Errorf("facility id is required")
	}
	return d.run(ctx, facilityID)
}

func (d *Detector) run(ctx context.Context, facilityID string) (Summary, error) {
	var (
		sum     Summary
		since   = d.now().Add(-d.lookback)
		records []snapshot.ChangeRecord
		subs    []Subscription
		err     error
	)

	if facilityID == "" {
		records, err = d.changes.ChangesInWindow(ctx, since)
	} else {
		records, err = d.changes.ChangesForFacility(ctx, facilityID, since)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("fetch candidates: %w", err)
	}
	sum.Scanned = len(records)
	if len(records) == 0 {
		return sum, nil
	}

	if facilityID == "" {
		subs, err = d.subs.ActiveSubscriptions(ctx)
	} else {
		subs, err = d.subs.ActiveSubscriptionsForFacility(ctx, facilityID)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("fetch subscriptions: %w", err)
	}

	byFacility := make(map[string][]Subscription, len(subs))
	for _, s := range subs {
		byFacility[s.FacilityID] = append(byFacility[s.FacilityID], s)
	}

	var emailable []Alert
	for _, rec := range records {
		classes := rec.Classes()
		slots := rec.Change.EnrolledDelta
		if slots < 0 {
			slots = -slots
		}
		confidence := confidenceWeak
		if rec.Change.Signal == snapshot.SignalPresent {
			confidence = confidenceStrong
		}

		for _, sub := range byFacility[rec.FacilityID] {
			for _, cls := range matchClasses(classes, sub.TargetClasses) {
				alert := Alert{
					UserID:         sub.UserID,
					FacilityID:     rec.FacilityID,
					FacilityName:   sub.FacilityName,
					AgeClass:       cls,
					EstimatedSlots: slots,
					Confidence:     confidence,
					Source:         AlertSource,
					DetectedAt:     d.now(),
				}
				inserted, err := d.alerts.InsertIfAbsent(ctx, alert, d.dedup)
				if err != nil {
					// One bad write must not block the rest of the sweep.
					d.logger.Warn("alert insert failed",
						"facility_id", alert.FacilityID, "user_id", alert.UserID,
						"age_class", cls, "error", err)
					continue
				}
				if !inserted {
					continue
				}
				sum.AlertsCreated++
				if sub.Prefs.Email {
					emailable = append(emailable, alert)
				}
			}
		}
	}

	if d.dispatcher != nil && len(emailable) > 0 {
		sum.EmailsQueued = d.dispatcher.SendAlertEmails(ctx, emailable)
	}

	d.logger.Info("Detection run complete",
		"facility_id", facilityID,
		"scanned", sum.Scanned,
		"alerts_created", sum.AlertsCreated,
		"emails_queued", sum.EmailsQueued)
	return sum, nil
}

// matchClasses filters a record's classes through a subscription's target
// set, preserving record order. An empty target set matches every class.
func matchClasses(classes, targets []string) []string {
	if len(targets) == 0 {
		return classes
	}
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	var out []string
	for _, c := range classes {
		if wanted[c] {
			out = append(out, c)
		}
	}
	return out
}
