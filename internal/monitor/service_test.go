package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hollis-aero/fleetwatch/pkg/anomaly"
	"github.com/hollis-aero/fleetwatch/pkg/fleet"
	"github.com/hollis-aero/fleetwatch/pkg/geo"
	"github.com/hollis-aero/fleetwatch/pkg/provider"
	"github.com/hollis-aero/fleetwatch/pkg/roster"
)

type fakeFetcher struct {
	resp provider.StatesResponse
	err  error
}

func (f *fakeFetcher) GetStates(ctx context.Context, hexList []string, bbox *provider.Bbox) (provider.StatesResponse, error) {
	return f.resp, f.err
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	saved   []fleet.StateVector
	latest  map[string]fleet.HistoryRecord
	history map[string][]fleet.HistoryRecord
	saveErr error
}

func (f *fakeHistoryStore) SaveSnapshot(ctx context.Context, ts int64, states []fleet.StateVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, states...)
	return nil
}

func (f *fakeHistoryStore) History(ctx context.Context, hex24 string, since int64, hasSince bool, limit int) ([]fleet.HistoryRecord, error) {
	return f.history[hex24], nil
}

func (f *fakeHistoryStore) LatestAll(ctx context.Context, since int64, hasSince bool) (map[string]fleet.HistoryRecord, error) {
	if f.latest == nil {
		return map[string]fleet.HistoryRecord{}, nil
	}
	return f.latest, nil
}

type fakeAnomalyLogger struct {
	mu     sync.Mutex
	logged []fleet.Record
}

func (f *fakeAnomalyLogger) LogAnomaly(ctx context.Context, rec fleet.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, rec)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []fleet.Record
}

func (f *fakeNotifier) Notify(rec fleet.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, rec)
}

func newTestGeoContext(t *testing.T) *geo.Context {
	t.Helper()
	dir := t.TempDir()
	airports := filepath.Join(dir, "airports.csv")
	hospitals := filepath.Join(dir, "hospitals.csv")
	if err := os.WriteFile(airports, []byte("40.0,-80.0,Test Airport\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hospitals, []byte("40.0,-80.0,Test Hospital\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return geo.NewContext(airports, hospitals, nil)
}

func testRosterSet() roster.Set {
	return roster.NewSet([]roster.Entry{
		{Tail: "N100AB", Hex24: "ABC123", ModelName: "UH-60", Manufacturer: "Sikorsky"},
	})
}

func newTestService(t *testing.T, fetcher StatesFetcher, hist *fakeHistoryStore, alog *fakeAnomalyLogger, notifier *fakeNotifier) *Service {
	t.Helper()
	cfg := Config{
		IntervalSeconds:   60,
		HistoryWindowSize: 20,
		NearAirportKm:     5.0,
		NearHospitalKm:    3.0,
		Anomaly:           anomaly.DefaultConfig(),
	}
	svc, err := NewService(cfg, fetcher, hist, alog, testRosterSet(), newTestGeoContext(t), notifier, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestTickDetectsHighSpeedForRosterAircraft(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{States: []fleet.StateVector{
		{Hex24: "ABC123", HasPosition: true, Latitude: 10, Longitude: 10, HasVelocity: true, Velocity: 90},
	}}}
	hist := &fakeHistoryStore{}
	alog := &fakeAnomalyLogger{}
	notifier := &fakeNotifier{}
	svc := newTestService(t, fetcher, hist, alog, notifier)

	svc.tick(context.Background(), 1000)

	if len(alog.logged) != 1 {
		t.Fatalf("logged %d anomalies, want 1", len(alog.logged))
	}
	if alog.logged[0].Kind != fleet.KindHighSpeed {
		t.Errorf("kind = %s, want high_speed", alog.logged[0].Kind)
	}
	if alog.logged[0].AircraftInfo == nil || alog.logged[0].AircraftInfo.NNumber != "N100AB" {
		t.Errorf("AircraftInfo not attached: %+v", alog.logged[0].AircraftInfo)
	}
	if len(notifier.notified) != 1 {
		t.Errorf("notified %d records, want 1", len(notifier.notified))
	}
	if len(hist.saved) != 1 {
		t.Errorf("saved %d snapshots, want 1", len(hist.saved))
	}
}

func TestTickIgnoresAircraftNotInRoster(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{States: []fleet.StateVector{
		{Hex24: "ZZZZZZ", HasPosition: true, Latitude: 10, Longitude: 10, HasVelocity: true, Velocity: 90},
	}}}
	hist := &fakeHistoryStore{}
	alog := &fakeAnomalyLogger{}
	notifier := &fakeNotifier{}
	svc := newTestService(t, fetcher, hist, alog, notifier)

	svc.tick(context.Background(), 1000)

	if len(hist.saved) != 0 || len(alog.logged) != 0 {
		t.Errorf("tick tracked a non-roster aircraft: saved=%d logged=%d", len(hist.saved), len(alog.logged))
	}
}

func TestTickSuppressesRapidDescentNearAirportWhileDescending(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{States: []fleet.StateVector{
		{
			Hex24: "ABC123", HasPosition: true, Latitude: 40.005, Longitude: -80.0,
			HasBaroAltitude: true, BaroAltitude: 800,
			HasVerticalRate: true, VerticalRate: -12,
		},
	}}}
	hist := &fakeHistoryStore{
		history: map[string][]fleet.HistoryRecord{
			"ABC123": {{Hex24: "ABC123", Timestamp: 980, Altitude: 1200, HasAltitude: true}},
		},
	}
	alog := &fakeAnomalyLogger{}
	notifier := &fakeNotifier{}
	svc := newTestService(t, fetcher, hist, alog, notifier)

	svc.tick(context.Background(), 1000)

	if len(alog.logged) != 0 {
		t.Errorf("logged %d anomalies, want 0 (rapid_descent near an airport while descending is a landing)", len(alog.logged))
	}
}

func TestTickDoesNotSuppressRapidDescentAwayFromAirport(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{States: []fleet.StateVector{
		{
			Hex24: "ABC123", HasPosition: true, Latitude: 0, Longitude: 0,
			HasBaroAltitude: true, BaroAltitude: 800,
			HasVerticalRate: true, VerticalRate: -12,
		},
	}}}
	hist := &fakeHistoryStore{
		history: map[string][]fleet.HistoryRecord{
			"ABC123": {{Hex24: "ABC123", Timestamp: 980, Altitude: 1200, HasAltitude: true}},
		},
	}
	alog := &fakeAnomalyLogger{}
	notifier := &fakeNotifier{}
	svc := newTestService(t, fetcher, hist, alog, notifier)

	svc.tick(context.Background(), 1000)

	if len(alog.logged) != 1 || alog.logged[0].Kind != fleet.KindRapidDescent {
		t.Fatalf("logged = %+v, want exactly one rapid_descent", alog.logged)
	}
	if _, ok := alog.logged[0].Details["distance_hospital_km"]; !ok {
		t.Error("rapid_descent record missing distance_hospital_km enrichment")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{}}
	svc := newTestService(t, fetcher, &fakeHistoryStore{}, &fakeAnomalyLogger{}, &fakeNotifier{})

	if err := svc.Pause(); err == nil {
		t.Error("Pause() from stopped: want error")
	}
	if err := svc.Resume(); err == nil {
		t.Error("Resume() from stopped: want error")
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Error("Start() while already running: want error")
	}
	if got := svc.State(); got != StateRunning {
		t.Errorf("State() = %s, want running", got)
	}

	if err := svc.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %s, want paused", got)
	}

	if err := svc.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	svc.Stop()
	if got := svc.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	fetcher := &fakeFetcher{resp: provider.StatesResponse{}}
	cfg := Config{IntervalSeconds: 3600, HistoryWindowSize: 20, Anomaly: anomaly.DefaultConfig()}
	svc, err := NewService(cfg, fetcher, &fakeHistoryStore{}, &fakeAnomalyLogger{}, testRosterSet(), nil, &fakeNotifier{}, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return promptly; sleep was not interrupted")
	}
}
