// Package monitor implements the Monitor Service (component I): the
// tick-loop orchestrator that owns the provider client, the state
// store, the anomaly detector, and the notifier, and drives them
// through one poll per interval. Grounded on the teacher's
// cmd/collector main loop for the fetch/store/sleep shape, generalized
// to the start/pause/resume/stop lifecycle spec §4.9 requires and the
// detect/suppress/enrich/notify pipeline the teacher's collector never had.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hollis-aero/fleetwatch/internal/config"
	"github.com/hollis-aero/fleetwatch/pkg/anomaly"
	"github.com/hollis-aero/fleetwatch/pkg/fleet"
	"github.com/hollis-aero/fleetwatch/pkg/geo"
	"github.com/hollis-aero/fleetwatch/pkg/geocode"
	"github.com/hollis-aero/fleetwatch/pkg/provider"
	"github.com/hollis-aero/fleetwatch/pkg/roster"
)

// State is the monitor service's lifecycle state (spec §4.9): stopped →
// running ↔ paused → stopped.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// StatesFetcher is the subset of pkg/provider.Client the tick loop
// needs; an interface so the loop is testable without a live HTTP call.
type StatesFetcher interface {
	GetStates(ctx context.Context, hexList []string, bbox *provider.Bbox) (provider.StatesResponse, error)
}

// HistoryStore is the subset of internal/store.HistoryRepository the
// tick loop needs.
type HistoryStore interface {
	SaveSnapshot(ctx context.Context, ts int64, states []fleet.StateVector) error
	History(ctx context.Context, hex24 string, since int64, hasSince bool, limit int) ([]fleet.HistoryRecord, error)
	LatestAll(ctx context.Context, since int64, hasSince bool) (map[string]fleet.HistoryRecord, error)
}

// AnomalyLogger is the subset of internal/store.AnomalyRepository the
// tick loop needs.
type AnomalyLogger interface {
	LogAnomaly(ctx context.Context, rec fleet.Record) error
}

// Notifier is the subset of pkg/notify.Notifier the tick loop needs.
type Notifier interface {
	Notify(rec fleet.Record)
}

// Reverse is the subset of pkg/geocode.Geocoder the tick loop needs for
// best-effort enrichment (spec §4.9 step 8).
type Reverse interface {
	Reverse(ctx context.Context, lat, lon float64) (geocode.Location, bool)
}

// anomalyChanSize bounds the optional UI-facing anomaly stream (spec
// §9's "message stream" design note); a full channel drops the newest
// record rather than blocking the tick loop.
const anomalyChanSize = 256

// Service is the Monitor Service: one dedicated worker driving a single
// tick at a time (spec §5). All collaborators are injected so the loop
// can run against fakes in tests.
type Service struct {
	fetcher    StatesFetcher
	history    HistoryStore
	anomalyLog AnomalyLogger
	notifier   Notifier
	geoCtx     *geo.Context
	geocoder   Reverse
	roster     roster.Set
	anomalyCfg anomaly.Config

	bbox              *provider.Bbox
	interval          time.Duration
	historyWindowSize int
	nearAirportKm     float64
	nearHospitalKm    float64

	onWarn func(string)

	mu    sync.Mutex
	state State
	ctrl  chan struct{}
	done  chan struct{}
	cancel context.CancelFunc

	anomalyCh chan fleet.Record
}

// Config is the subset of internal/config.Config the monitor service
// needs at construction; Service takes it by value so callers build it
// once from the loaded configuration.
type Config struct {
	Region            string
	States            []string
	IntervalSeconds   int
	HistoryWindowSize int
	NearAirportKm     float64
	NearHospitalKm    float64
	Anomaly           anomaly.Config
}

// ConfigFromFile adapts internal/config.Config into the monitor's own
// Config, a literal field copy since internal/config.AnomalyConfig and
// anomaly.Config are shaped identically by design.
func ConfigFromFile(cfg *config.Config) Config {
	return Config{
		Region:            cfg.Monitor.Region,
		States:            cfg.Monitor.States,
		IntervalSeconds:   cfg.Monitor.IntervalSeconds,
		HistoryWindowSize: cfg.Monitor.HistoryWindowSize,
		NearAirportKm:     cfg.Geo.NearAirportKm,
		NearHospitalKm:    cfg.Geo.NearHospitalKm,
		Anomaly: anomaly.Config{
			SpeedThresholdKnots:       cfg.Anomaly.SpeedThresholdKnots,
			RapidClimbRateFtMin:       cfg.Anomaly.RapidClimbRateFtMin,
			RapidDescentFt:            cfg.Anomaly.RapidDescentFt,
			RapidDescentWindowSeconds: cfg.Anomaly.RapidDescentWindowSeconds,
			MultiLaunchWindowSeconds:  cfg.Anomaly.MultiLaunchWindowSeconds,
			ErraticHeadingDegrees:     cfg.Anomaly.ErraticHeadingDegrees,
			HoverAltitudeFt:           cfg.Anomaly.HoverAltitudeFt,
			HoverVelocityKnots:        cfg.Anomaly.HoverVelocityKnots,
		},
	}
}

// NewService builds a Service in the stopped state. onWarn, if non-nil,
// receives one message for every tick-level problem (spec §7's
// log-and-continue policy); it is never called for a fatal init error,
// which is returned instead.
func NewService(cfg Config, fetcher StatesFetcher, history HistoryStore, anomalyLog AnomalyLogger,
	rosterSet roster.Set, geoCtx *geo.Context, notifier Notifier, geocoder Reverse, onWarn func(string)) (*Service, error) {

	bbox, err := ComputeBbox(cfg.Region, cfg.States)
	if err != nil {
		return nil, err
	}

	interval := cfg.IntervalSeconds
	if interval <= 0 {
		interval = 60
	}
	if interval < 10 && onWarn != nil {
		onWarn(fmt.Sprintf("interval_seconds %d is below the recommended minimum of 10", interval))
	}
	historyWindowSize := cfg.HistoryWindowSize
	if historyWindowSize <= 0 {
		historyWindowSize = 20
	}

	return &Service{
		fetcher:           fetcher,
		history:           history,
		anomalyLog:        anomalyLog,
		notifier:          notifier,
		geoCtx:            geoCtx,
		geocoder:          geocoder,
		roster:            rosterSet,
		anomalyCfg:        cfg.Anomaly,
		bbox:              bbox,
		interval:          time.Duration(interval) * time.Second,
		historyWindowSize: historyWindowSize,
		nearAirportKm:     cfg.NearAirportKm,
		nearHospitalKm:    cfg.NearHospitalKm,
		onWarn:            onWarn,
		state:             StateStopped,
		ctrl:              make(chan struct{}, 1),
		anomalyCh:         make(chan fleet.Record, anomalyChanSize),
	}, nil
}

// State returns the service's current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Anomalies returns the channel surviving anomalies are published to,
// for an optional UI subscriber (spec §9's "message stream" design
// note). Never blocks the tick loop: a full channel drops the record.
func (s *Service) Anomalies() <-chan fleet.Record {
	return s.anomalyCh
}

// Start transitions stopped → running and begins ticking. ctx bounds
// the service's entire lifetime; cancelling it is equivalent to Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return fmt.Errorf("monitor: cannot start from state %s", s.state)
	}
	s.state = StateRunning
	s.done = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Pause transitions running → paused. The tick in progress, if any,
// completes; no new tick starts until Resume.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return fmt.Errorf("monitor: cannot pause from state %s", s.state)
	}
	s.state = StatePaused
	s.wake()
	return nil
}

// Resume transitions paused → running. The next tick starts at the
// next tick boundary; there is no catch-up burst for the paused interval.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return fmt.Errorf("monitor: cannot resume from state %s", s.state)
	}
	s.state = StateRunning
	s.wake()
	return nil
}

// Stop transitions to stopped (the terminal state) and blocks until the
// tick loop has exited. Safe to call when already stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// wake interrupts a blocked sleep or pause-wait so the loop rechecks
// state immediately. Non-blocking: a pending wake is enough.
func (s *Service) wake() {
	select {
	case s.ctrl <- struct{}{}:
	default:
	}
}

func (s *Service) warn(format string, args ...interface{}) {
	if s.onWarn != nil {
		s.onWarn(fmt.Sprintf(format, args...))
	}
}

// run is the tick loop body, one dedicated goroutine per Start (spec
// §5's single monitor worker). All suspension points honor ctx
// cancellation.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if s.State() == StatePaused {
			select {
			case <-ctx.Done():
				return
			case <-s.ctrl:
			}
			continue
		}

		tickStart := time.Now()
		s.tick(ctx, tickStart.Unix())

		elapsed := time.Since(tickStart)
		wait := s.interval - elapsed
		if wait <= 0 {
			s.warn("tick overran interval_seconds (took %s); starting next tick immediately", elapsed)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.ctrl:
			timer.Stop()
		}
	}
}

// tick runs exactly one poll/store/detect/notify cycle (spec §4.9).
// Per-tick failures are logged via onWarn and end the tick early; they
// never abort the loop.
func (s *Service) tick(ctx context.Context, tickStart int64) {
	resp, err := s.fetcher.GetStates(ctx, nil, s.bbox)
	if err != nil {
		s.warn("tick: getStates failed, skipping tick: %v", err)
		return
	}

	currentMap := make(map[string]fleet.StateVector)
	for _, st := range resp.States {
		hex := strings.ToUpper(strings.TrimSpace(st.Hex24))
		if !s.roster.Contains(hex) {
			continue
		}
		st.Hex24 = hex
		st.Timestamp = tickStart
		currentMap[hex] = st
	}
	if len(currentMap) == 0 {
		return
	}

	previousMap, err := s.history.LatestAll(ctx, 0, false)
	if err != nil {
		s.warn("tick: latestAll failed, skipping tick: %v", err)
		return
	}

	historyMap := make(map[string][]fleet.HistoryRecord, len(currentMap))
	for hex := range currentMap {
		h, err := s.history.History(ctx, hex, 0, false, s.historyWindowSize)
		if err != nil {
			s.warn("tick: history lookup failed for %s, treating as empty: %v", hex, err)
			continue
		}
		historyMap[hex] = h
	}

	states := make([]fleet.StateVector, 0, len(currentMap))
	for _, st := range currentMap {
		states = append(states, st)
	}
	if err := s.history.SaveSnapshot(ctx, tickStart, states); err != nil {
		s.warn("tick: saveSnapshot failed, skipping tick: %v", err)
		return
	}

	anomalies := anomaly.Detect(s.anomalyCfg, currentMap, previousMap, historyMap)
	surviving := s.suppressLandings(anomalies, currentMap)
	s.enrichAndDispatch(ctx, surviving, currentMap)
}

// suppressLandings drops rapid_descent anomalies that are really a
// landing: near an airport with a still-descending vertical rate (spec
// §4.9 step 6, §8's geo-suppression boundary behavior).
func (s *Service) suppressLandings(anomalies []fleet.Record, currentMap map[string]fleet.StateVector) []fleet.Record {
	if s.geoCtx == nil {
		return anomalies
	}
	out := make([]fleet.Record, 0, len(anomalies))
	for _, rec := range anomalies {
		if rec.Kind == fleet.KindRapidDescent && rec.Hex24 != "" {
			st, ok := currentMap[rec.Hex24]
			if ok && st.HasPosition && st.HasVerticalRate && st.VerticalRate < 0 &&
				s.geoCtx.IsNearAirport(st.Latitude, st.Longitude, s.nearAirportKm) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// enrichAndDispatch performs steps 7-9 of the tick: hospital-proximity
// enrichment, roster/URL attachment, then log + notify + publish, in
// that order (spec §5's ordering guarantee: logging precedes notifying).
func (s *Service) enrichAndDispatch(ctx context.Context, anomalies []fleet.Record, currentMap map[string]fleet.StateVector) {
	for _, rec := range anomalies {
		st, hasState := currentMap[rec.Hex24]

		if s.geoCtx != nil && hasState && st.HasPosition {
			distKm, name := s.geoCtx.NearestHospital(st.Latitude, st.Longitude)
			rec.Details["distance_hospital_km"] = round1(distKm)
			rec.Details["near_hospital"] = distKm <= s.nearHospitalKm
			if name != "" {
				rec.Details["hospital_name"] = name
			}
		}

		if rec.Hex24 != "" {
			info := s.roster.AircraftInfo(rec.Hex24)
			if info != nil {
				info.FlightAwareURL = flightAwareURL(info.NNumber)
				if s.geocoder != nil && hasState && st.HasPosition {
					if loc, ok := s.geocoder.Reverse(ctx, st.Latitude, st.Longitude); ok {
						info.BroadcastifyURL = broadcastifyURL(s.geocoder, loc)
					}
				}
				rec.AircraftInfo = info
			}
		}

		if s.anomalyLog != nil {
			if err := s.anomalyLog.LogAnomaly(ctx, rec); err != nil {
				s.warn("tick: logAnomaly failed for %s/%s: %v", rec.Hex24, rec.Kind, err)
			}
		}
		if s.notifier != nil {
			s.notifier.Notify(rec)
		}
		s.publish(rec)
	}
}

// publish sends rec onto the optional UI-facing anomaly stream without
// ever blocking the tick loop.
func (s *Service) publish(rec fleet.Record) {
	select {
	case s.anomalyCh <- rec:
	default:
		s.warn("anomaly stream is full, dropping record for %s/%s", rec.Hex24, rec.Kind)
	}
}

// flightAwareURL builds the live-flight URL from a roster tail number,
// forcing the "N" prefix spec §4.9 step 8 requires.
func flightAwareURL(tail string) string {
	tail = strings.ToUpper(strings.TrimSpace(tail))
	if !strings.HasPrefix(tail, "N") {
		tail = "N" + tail
	}
	return "https://www.flightaware.com/live/flight/" + tail
}

// broadcastifyURL adapts geocode.BroadcastifyURL's concrete-Geocoder
// signature to the Reverse interface the service depends on. When
// geocoder isn't a real *geocode.Geocoder (e.g. a test fake) it passes
// a nil Geocoder, so no county-code table is consulted and the result
// is the search URL (or the generic listen page for an empty loc).
func broadcastifyURL(g Reverse, loc geocode.Location) string {
	if gc, ok := g.(*geocode.Geocoder); ok {
		return geocode.BroadcastifyURL(gc, loc)
	}
	return geocode.BroadcastifyURL(nil, loc)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
