// Package snapshot turns normalized facility observations into change
// records. Each observation with a known enrolled count is compared against
// the facility's most recent prior snapshot; the delta and a tri-state
// turnover signal are persisted as one immutable change record.
package snapshot

import (
	"encoding/json"
	"time"
)

// --------------------------------------------------------------------------
// Age bands
// --------------------------------------------------------------------------

// AgeBand identifies one of the six fixed childcare age groupings used as
// capacity-map keys by the ingestion pipeline.
type AgeBand string

const (
	Age0     AgeBand = "age_0"
	Age1     AgeBand = "age_1"
	Age2     AgeBand = "age_2"
	Age3     AgeBand = "age_3"
	Age4     AgeBand = "age_4"
	Age5Plus AgeBand = "age_5_plus"
)

// ageBandOrder fixes iteration order for building class maps and lists.
var ageBandOrder = []AgeBand{Age0, Age1, Age2, Age3, Age4, Age5Plus}

// ageBandLabels maps age bands to the display labels used on subscriptions
// and alerts.
var ageBandLabels = map[AgeBand]string{
	Age0:     "만0세",
	Age1:     "만1세",
	Age2:     "만2세",
	Age3:     "만3세",
	Age4:     "만4세",
	Age5Plus: "만5세이상",
}

// UnknownClass is the sentinel label used when a change record carries no
// per-class waitlist map.
const UnknownClass = "unknown"

// ClassLabels returns all age-class display labels in canonical order.
func ClassLabels() []string {
	labels := make([]string, 0, len(ageBandOrder))
	for _, band := range ageBandOrder {
		labels = append(labels, ageBandLabels[band])
	}
	return labels
}

// --------------------------------------------------------------------------
// Signal
// --------------------------------------------------------------------------

// Signal is the tri-state turnover indicator of a change record. Unknown
// means the facility had no prior snapshot to compare against; it is distinct
// from None (compared, no drop).
type Signal int

const (
	SignalUnknown Signal = iota
	SignalNone
	SignalPresent
)

func (s Signal) String() string {
	switch s {
	case SignalPresent:
		return "present"
	case SignalNone:
		return "none"
	default:
		return "unknown"
	}
}

// Bool returns the nullable-boolean persistence form: nil for Unknown,
// otherwise whether a turnover was detected.
func (s Signal) Bool() *bool {
	if s == SignalUnknown {
		return nil
	}
	b := s == SignalPresent
	return &b
}

// MarshalJSON emits the wire form: null when unknown, else a boolean.
func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Bool())
}

// SignalFromBool converts the persisted nullable boolean back to a Signal.
func SignalFromBool(b *bool) Signal {
	switch {
	case b == nil:
		return SignalUnknown
	case *b:
		return SignalPresent
	default:
		return SignalNone
	}
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Observation is one normalized point-in-time view of a facility, supplied
// by the ingestion pipeline. CapacityCurrent is nil when the registry did
// not report an enrolled count; such observations cannot be diffed.
type Observation struct {
	FacilityID      string
	FacilityName    string
	CapacityCurrent *int
	CapacityByAge   map[AgeBand]int
	ObservedAt      time.Time
}

// Change is the comparison result against the prior snapshot.
type Change struct {
	EnrolledDelta int    `json:"enrolled_delta"`
	Signal        Signal `json:"to_detected"`
}

// ChangeRecord pairs one observation with its delta against the facility's
// previous snapshot. Created once, never updated.
type ChangeRecord struct {
	FacilityID      string         `json:"facility_id"`
	ObservedAt      time.Time      `json:"observed_at"`
	WaitlistByClass map[string]int `json:"waitlist_by_class,omitempty"`
	Change          Change         `json:"change"`
}

// Classes returns the record's age-class labels in canonical order, or the
// single sentinel label when no waitlist map is present.
func (r ChangeRecord) Classes() []string {
	if len(r.WaitlistByClass) == 0 {
		return []string{UnknownClass}
	}
	classes := make([]string, 0, len(r.WaitlistByClass))
	for _, band := range ageBandOrder {
		label := ageBandLabels[band]
		if _, ok := r.WaitlistByClass[label]; ok {
			classes = append(classes, label)
		}
	}
	// Labels outside the fixed table should not occur, but keep them rather
	// than silently dropping alert dimensions.
	if len(classes) < len(r.WaitlistByClass) {
		seen := make(map[string]bool, len(classes))
		for _, c := range classes {
			seen[c] = true
		}
		for label := range r.WaitlistByClass {
			if !seen[label] {
				classes = append(classes, label)
			}
		}
	}
	return classes
}

// waitlistFromCapacity builds the labeled waitlist map from a per-age-band
// capacity map, keeping only bands present with a positive value.
func waitlistFromCapacity(byAge map[AgeBand]int) map[string]int {
	if len(byAge) == 0 {
		return nil
	}
	out := make(map[string]int, len(byAge))
	for _, band := range ageBandOrder {
		if v, ok := byAge[band]; ok && v > 0 {
			out[ageBandLabels[band]] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
