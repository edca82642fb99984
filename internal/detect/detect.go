// Package detect scans recent change records for turnover events, matches
// them against active subscriptions, and emits deduplicated alerts.
//
// Pipeline: fetch candidates in the lookback window → cross-match against
// subscriptions → conditional alert insert (dedup window) → hand email-opted
// alerts to the dispatcher.
package detect

import "time"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// AlertSource marks alerts produced by automatic detection, as opposed
	// to rows seeded by admin tooling.
	AlertSource = "auto_detection"

	// confidenceStrong applies when the enrolled count actually dropped;
	// confidenceWeak when the record is surfaced without a drop.
	confidenceStrong = 0.85
	confidenceWeak   = 0.6

	DefaultLookback = 6 * time.Hour
	DefaultDedup    = 24 * time.Hour
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// NotificationPrefs are a subscription's delivery channel flags.
type NotificationPrefs struct {
	Push  bool
	SMS   bool
	Email bool
}

// Subscription is one user's interest in turnover at one facility.
// TargetClasses empty means "any age class".
type Subscription struct {
	ID            int64
	UserID        string
	FacilityID    string
	FacilityName  string
	TargetClasses []string
	IsActive      bool
	Prefs         NotificationPrefs
}

// Alert is one emitted turnover notification row.
type Alert struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	FacilityID     string    `json:"facility_id"`
	FacilityName   string    `json:"facility_name"`
	AgeClass       string    `json:"age_class"`
	EstimatedSlots int       `json:"estimated_slots"`
	Confidence     float64   `json:"confidence"`
	Source         string    `json:"source"`
	IsRead         bool      `json:"is_read"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Summary reports one detection run.
type Summary struct {
	Scanned       int `json:"scanned"`
	AlertsCreated int `json:"alerts_created"`
	EmailsQueued  int `json:"emails_queued"`
}
