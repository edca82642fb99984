package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jariyo/jariyo-data/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --------------------------------------------------------------------------
// In-memory fakes
// --------------------------------------------------------------------------

type memChanges struct {
	records []snapshot.ChangeRecord
	err     error
}

func (m *memChanges) ChangesInWindow(ctx context.Context, since time.Time) ([]snapshot.ChangeRecord, error) {
	return m.filter("", since)
}

func (m *memChanges) ChangesForFacility(ctx context.Context, facilityID string, since time.Time) ([]snapshot.ChangeRecord, error) {
	return m.filter(facilityID, since)
}

func (m *memChanges) filter(facilityID string, since time.Time) ([]snapshot.ChangeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []snapshot.ChangeRecord
	for _, rec := range m.records {
		if rec.Change.Signal == snapshot.SignalUnknown {
			continue
		}
		if rec.ObservedAt.Before(since) {
			continue
		}
		if facilityID != "" && rec.FacilityID != facilityID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type memSubs struct {
	subs []Subscription
	err  error
}

func (m *memSubs) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	return m.filter("")
}

func (m *memSubs) ActiveSubscriptionsForFacility(ctx context.Context, facilityID string) ([]Subscription, error) {
	return m.filter(facilityID)
}

func (m *memSubs) filter(facilityID string) ([]Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Subscription
	for _, s := range m.subs {
		if !s.IsActive {
			continue
		}
		if facilityID != "" && s.FacilityID != facilityID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []Alert
	failOn func(Alert) error
}

func (m *memAlerts) InsertIfAbsent(ctx context.Context, alert Alert, dedupWindow time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(alert); err != nil {
			return false, err
		}
	}
	cutoff := alert.DetectedAt.Add(-dedupWindow)
	for _, a := range m.alerts {
		if a.UserID == alert.UserID && a.FacilityID == alert.FacilityID &&
			a.AgeClass == alert.AgeClass && a.DetectedAt.After(cutoff) {
			return false, nil
		}
	}
	m.alerts = append(m.alerts, alert)
	return true, nil
}

type stubDispatcher struct {
	batches [][]Alert
}

func (d *stubDispatcher) SendAlertEmails(ctx context.Context, alerts []Alert) int {
	d.batches = append(d.batches, alerts)
	return len(alerts)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func record(facilityID string, delta int, signal snapshot.Signal, waitlist map[string]int) snapshot.ChangeRecord {
	return snapshot.ChangeRecord{
		FacilityID:      facilityID,
		ObservedAt:      time.Now().Add(-time.Hour),
		WaitlistByClass: waitlist,
		Change:          snapshot.Change{EnrolledDelta: delta, Signal: signal},
	}
}

func subscription(userID, facilityID string, targets []string, email bool) Subscription {
	return Subscription{
		UserID:        userID,
		FacilityID:    facilityID,
		FacilityName:  facilityID + " 어린이집",
		TargetClasses: targets,
		IsActive:      true,
		Prefs:         NotificationPrefs{Push: true, Email: email},
	}
}

func newDetector(changes *memChanges, subs *memSubs, alerts *memAlerts, dispatcher Dispatcher) *Detector {
	return New(changes, subs, alerts, dispatcher, 6*time.Hour, 24*time.Hour, testLogger())
}

func alertClasses(alerts []Alert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.AgeClass)
	}
	sort.Strings(out)
	return out
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestDetectAllNoCandidates(t *testing.T) {
	detector := newDetector(&memChanges{}, &memSubs{}, &memAlerts{}, nil)
	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum != (Summary{}) {
		t.Errorf("summary = %+v, want zero", sum)
	}
}

func TestDetectAllFansOutPerClass(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -2, snapshot.SignalPresent, map[string]int{"만1세": 5, "만2세": 7}),
	}}
	subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", nil, true)}}
	alerts := &memAlerts{}
	dispatcher := &stubDispatcher{}
	detector := newDetector(changes, subs, alerts, dispatcher)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.Scanned != 1 {
		t.Errorf("scanned = %d, want 1", sum.Scanned)
	}
	if sum.AlertsCreated != 2 {
		t.Errorf("alerts created = %d, want 2", sum.AlertsCreated)
	}
	if sum.EmailsQueued != 2 {
		t.Errorf("emails queued = %d, want 2", sum.EmailsQueued)
	}
	if got, want := alertClasses(alerts.alerts), []string{"만1세", "만2세"}; !reflect.DeepEqual(got, want) {
		t.Errorf("alert classes = %v, want %v", got, want)
	}
}

func TestDetectTargetClassFilter(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, map[string]int{"만2세": 4, "만3세": 6}),
	}}
	subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", []string{"만2세"}, false)}}
	alerts := &memAlerts{}
	detector := newDetector(changes, subs, alerts, nil)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.AlertsCreated != 1 {
		t.Fatalf("alerts created = %d, want 1", sum.AlertsCreated)
	}
	if alerts.alerts[0].AgeClass != "만2세" {
		t.Errorf("age class = %s, want 만2세", alerts.alerts[0].AgeClass)
	}
}

func TestDetectDedupSuppressesRerun(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -2, snapshot.SignalPresent, map[string]int{"만1세": 5}),
	}}
	subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", nil, true)}}
	alerts := &memAlerts{}
	detector := newDetector(changes, subs, alerts, &stubDispatcher{})

	first, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.AlertsCreated != 1 {
		t.Fatalf("first run alerts = %d, want 1", first.AlertsCreated)
	}

	second, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Scanned != 1 {
		t.Errorf("second run scanned = %d, want 1", second.Scanned)
	}
	if second.AlertsCreated != 0 {
		t.Errorf("second run alerts = %d, want 0", second.AlertsCreated)
	}
	if second.EmailsQueued != 0 {
		t.Errorf("second run emails = %d, want 0", second.EmailsQueued)
	}
}

func TestEstimatedSlotsAndConfidence(t *testing.T) {
	cases := []struct {
		name           string
		delta          int
		signal         snapshot.Signal
		wantSlots      int
		wantConfidence float64
	}{
		{"turnover detected", -2, snapshot.SignalPresent, 2, 0.85},
		{"weak signal, positive delta", 3, snapshot.SignalNone, 3, 0.6},
		{"weak signal, zero delta", 0, snapshot.SignalNone, 0, 0.6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changes := &memChanges{records: []snapshot.ChangeRecord{
				record("fac-A", tc.delta, tc.signal, map[string]int{"만1세": 5}),
			}}
			subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", nil, false)}}
			alerts := &memAlerts{}
			detector := newDetector(changes, subs, alerts, nil)

			if _, err := detector.DetectAll(context.Background()); err != nil {
				t.Fatalf("DetectAll returned error: %v", err)
			}
			if len(alerts.alerts) != 1 {
				t.Fatalf("alerts = %d, want 1", len(alerts.alerts))
			}
			a := alerts.alerts[0]
			if a.EstimatedSlots != tc.wantSlots {
				t.Errorf("estimated slots = %d, want %d", a.EstimatedSlots, tc.wantSlots)
			}
			if a.Confidence != tc.wantConfidence {
				t.Errorf("confidence = %v, want %v", a.Confidence, tc.wantConfidence)
			}
			if a.Source != AlertSource {
				t.Errorf("source = %s, want %s", a.Source, AlertSource)
			}
			if a.IsRead {
				t.Error("new alert must be unread")
			}
		})
	}
}

func TestUnknownClassFallback(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, nil),
	}}
	subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", nil, false)}}
	alerts := &memAlerts{}
	detector := newDetector(changes, subs, alerts, nil)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.AlertsCreated != 1 {
		t.Fatalf("alerts created = %d, want 1", sum.AlertsCreated)
	}
	if alerts.alerts[0].AgeClass != snapshot.UnknownClass {
		t.Errorf("age class = %s, want %s", alerts.alerts[0].AgeClass, snapshot.UnknownClass)
	}
}

func TestDetectForFacilityScopesScan(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, map[string]int{"만1세": 5}),
		record("fac-B", -3, snapshot.SignalPresent, map[string]int{"만2세": 4}),
	}}
	subs := &memSubs{subs: []Subscription{
		subscription("user-1", "fac-A", nil, false),
		subscription("user-2", "fac-B", nil, false),
	}}
	alerts := &memAlerts{}
	detector := newDetector(changes, subs, alerts, nil)

	sum, err := detector.DetectForFacility(context.Background(), "fac-A")
	if err != nil {
		t.Fatalf("DetectForFacility returned error: %v", err)
	}
	if sum.Scanned != 1 {
		t.Errorf("scanned = %d, want 1", sum.Scanned)
	}
	if sum.AlertsCreated != 1 {
		t.Errorf("alerts created = %d, want 1", sum.AlertsCreated)
	}
	for _, a := range alerts.alerts {
		if a.FacilityID != "fac-A" {
			t.Errorf("unexpected alert for %s", a.FacilityID)
		}
	}

	empty, err := detector.DetectForFacility(context.Background(), "fac-none")
	if err != nil {
		t.Fatalf("DetectForFacility returned error: %v", err)
	}
	if empty != (Summary{}) {
		t.Errorf("summary = %+v, want zero", empty)
	}
}

func TestDetectForFacilityRequiresID(t *testing.T) {
	detector := newDetector(&memChanges{}, &memSubs{}, &memAlerts{}, nil)
	if _, err := detector.DetectForFacility(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty facility id")
	}
}

func TestDetectCrossProduct(t *testing.T) {
	// 2 facilities, 3 subscriptions: two on A (one restricted to 만1세),
	// one on B. Expect 3 alerts total.
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -2, snapshot.SignalPresent, map[string]int{"만1세": 5, "만3세": 2}),
		record("fac-B", -1, snapshot.SignalPresent, map[string]int{"만2세": 4}),
	}}
	subs := &memSubs{subs: []Subscription{
		subscription("user-1", "fac-A", []string{"만1세"}, false),
		subscription("user-2", "fac-A", []string{"만3세"}, false),
		subscription("user-3", "fac-B", nil, false),
	}}
	alerts := &memAlerts{}
	detector := newDetector(changes, subs, alerts, nil)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.Scanned != 2 {
		t.Errorf("scanned = %d, want 2", sum.Scanned)
	}
	if sum.AlertsCreated != 3 {
		t.Errorf("alerts created = %d, want 3", sum.AlertsCreated)
	}

	got := make(map[string]string, len(alerts.alerts))
	for _, a := range alerts.alerts {
		got[a.UserID] = a.AgeClass
	}
	want := map[string]string{"user-1": "만1세", "user-2": "만3세", "user-3": "만2세"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("alerts = %v, want %v", got, want)
	}
}

func TestInsertFailureDoesNotAbortScan(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, map[string]int{"만1세": 5}),
		record("fac-B", -1, snapshot.SignalPresent, map[string]int{"만2세": 4}),
	}}
	subs := &memSubs{subs: []Subscription{
		subscription("user-1", "fac-A", nil, false),
		subscription("user-2", "fac-B", nil, false),
	}}
	alerts := &memAlerts{failOn: func(a Alert) error {
		if a.FacilityID == "fac-A" {
			return errors.New("store unavailable")
		}
		return nil
	}}
	detector := newDetector(changes, subs, alerts, nil)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.Scanned != 2 {
		t.Errorf("scanned = %d, want 2", sum.Scanned)
	}
	if sum.AlertsCreated != 1 {
		t.Errorf("alerts created = %d, want 1", sum.AlertsCreated)
	}
}

func TestFetchFailuresAreFatal(t *testing.T) {
	fetchErr := errors.New("connection refused")

	detector := newDetector(&memChanges{err: fetchErr}, &memSubs{}, &memAlerts{}, nil)
	if _, err := detector.DetectAll(context.Background()); !errors.Is(err, fetchErr) {
		t.Errorf("candidate fetch error = %v, want %v", err, fetchErr)
	}

	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, nil),
	}}
	detector = newDetector(changes, &memSubs{err: fetchErr}, &memAlerts{}, nil)
	if _, err := detector.DetectAll(context.Background()); !errors.Is(err, fetchErr) {
		t.Errorf("subscription fetch error = %v, want %v", err, fetchErr)
	}
}

func TestOnlyEmailSubscribersAreQueued(t *testing.T) {
	changes := &memChanges{records: []snapshot.ChangeRecord{
		record("fac-A", -1, snapshot.SignalPresent, map[string]int{"만1세": 5}),
	}}
	subs := &memSubs{subs: []Subscription{
		subscription("user-email", "fac-A", nil, true),
		subscription("user-push", "fac-A", nil, false),
	}}
	alerts := &memAlerts{}
	dispatcher := &stubDispatcher{}
	detector := newDetector(changes, subs, alerts, dispatcher)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.AlertsCreated != 2 {
		t.Errorf("alerts created = %d, want 2", sum.AlertsCreated)
	}
	if sum.EmailsQueued != 1 {
		t.Errorf("emails queued = %d, want 1", sum.EmailsQueued)
	}
	if len(dispatcher.batches) != 1 || len(dispatcher.batches[0]) != 1 {
		t.Fatalf("dispatcher batches = %+v, want one batch of one", dispatcher.batches)
	}
	if dispatcher.batches[0][0].UserID != "user-email" {
		t.Errorf("queued user = %s, want user-email", dispatcher.batches[0][0].UserID)
	}
}

func TestLookbackWindowExcludesOldRecords(t *testing.T) {
	old := record("fac-A", -1, snapshot.SignalPresent, map[string]int{"만1세": 5})
	old.ObservedAt = time.Now().Add(-48 * time.Hour)
	changes := &memChanges{records: []snapshot.ChangeRecord{old}}
	subs := &memSubs{subs: []Subscription{subscription("user-1", "fac-A", nil, false)}}
	detector := newDetector(changes, subs, &memAlerts{}, nil)

	sum, err := detector.DetectAll(context.Background())
	if err != nil {
		t.Fatalf("DetectAll returned error: %v", err)
	}
	if sum.Scanned != 0 {
		t.Errorf("scanned = %d, want 0", sum.Scanned)
	}
}
