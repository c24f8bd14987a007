package anomaly

import (
	"testing"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

func hasKind(records []fleet.Record, kind fleet.Kind) (fleet.Record, bool) {
	for _, r := range records {
		if r.Kind == kind {
			return r, true
		}
	}
	return fleet.Record{}, false
}

func TestHighSpeedFires(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Velocity: 90, HasVelocity: true, Timestamp: 1000}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)

	r, ok := hasKind(records, fleet.KindHighSpeed)
	if !ok {
		t.Fatal("Detect() did not emit high_speed")
	}
	if r.Severity != fleet.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", r.Severity)
	}
	knots := r.Details["velocity_knots"].(float64)
	if knots < 174.9 || knots > 175.0 {
		t.Errorf("velocity_knots = %v, want ≈174.9", knots)
	}
}

func TestHighSpeedBelowThresholdDoesNotFire(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Velocity: 50, HasVelocity: true, Timestamp: 1000}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)
	if _, ok := hasKind(records, fleet.KindHighSpeed); ok {
		t.Error("Detect() emitted high_speed below threshold")
	}
}

// TestAirlinerSpeedGAAircraft is scenario 1: a GA aircraft reporting
// airliner-like speed, with a recent history showing a sudden jump.
func TestAirlinerSpeedGAAircraft(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Velocity: 90, HasVelocity: true, Timestamp: 1000, LastContact: 1000}
	history := []fleet.HistoryRecord{
		{Hex24: "A1B2C3", Velocity: 43, HasVelocity: true, Timestamp: 940},
		{Hex24: "A1B2C3", Velocity: 41, HasVelocity: true, Timestamp: 920},
		{Hex24: "A1B2C3", Velocity: 42, HasVelocity: true, Timestamp: 900},
		{Hex24: "A1B2C3", Velocity: 40, HasVelocity: true, Timestamp: 880},
	}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})

	if _, ok := hasKind(records, fleet.KindHighSpeed); !ok {
		t.Error("Detect() did not emit high_speed")
	}
	r, ok := hasKind(records, fleet.KindSuddenSpeedIncrease)
	if !ok {
		t.Fatal("Detect() did not emit sudden_speed_increase")
	}
	if r.Severity != fleet.SeverityMedium {
		t.Errorf("Severity = %q, want MEDIUM", r.Severity)
	}
	if pct := r.Details["increase_percent"].(float64); pct <= 60 {
		t.Errorf("increase_percent = %v, want > 60", pct)
	}
	if abs := r.Details["absolute_increase_knots"].(float64); abs <= 20 {
		t.Errorf("absolute_increase_knots = %v, want > 20", abs)
	}
}

func TestSuddenSpeedIncreaseExcludesMostRecentHistoryEntry(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Velocity: 40, HasVelocity: true, Timestamp: 1000}
	// The most recent history entry (index 0) reports a velocity that would
	// otherwise dominate the baseline; it must be excluded.
	history := []fleet.HistoryRecord{
		{Velocity: 39, HasVelocity: true, Timestamp: 990},
		{Velocity: 5, HasVelocity: true, Timestamp: 960},
		{Velocity: 5, HasVelocity: true, Timestamp: 930},
		{Velocity: 5, HasVelocity: true, Timestamp: 900},
	}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})

	r, ok := hasKind(records, fleet.KindSuddenSpeedIncrease)
	if !ok {
		t.Fatal("Detect() did not emit sudden_speed_increase")
	}
	baseline := r.Details["baseline_velocity_knots"].(float64)
	if baseline > 15 {
		t.Errorf("baseline_velocity_knots = %v, want baseline computed from the 3 older entries (≈9.7), not the excluded 39 m/s entry", baseline)
	}
}

func TestSuddenSpeedIncreaseRequiresTwoHistoryEntries(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Velocity: 90, HasVelocity: true, Timestamp: 1000}
	history := []fleet.HistoryRecord{{Velocity: 40, HasVelocity: true, Timestamp: 990}}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	if _, ok := hasKind(records, fleet.KindSuddenSpeedIncrease); ok {
		t.Error("Detect() emitted sudden_speed_increase with only 1 history entry")
	}
}

// TestEmergencySquawk is scenario 2.
func TestEmergencySquawk(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{
		Hex24: "A1B2C3", Squawk: "7700", HasSquawk: true,
		Velocity: 50, HasVelocity: true,
		BaroAltitude: 500, HasBaroAltitude: true,
		Timestamp: 1000,
	}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)

	if len(records) != 1 {
		t.Fatalf("Detect() returned %d records, want exactly 1", len(records))
	}
	r := records[0]
	if r.Kind != fleet.KindEmergencySquawkEmergency {
		t.Errorf("Kind = %q, want emergency_squawk_emergency", r.Kind)
	}
	if r.Severity != fleet.SeverityCritical {
		t.Errorf("Severity = %q, want CRITICAL", r.Severity)
	}
	if code := r.Details["squawk_code"]; code != "7700" {
		t.Errorf("squawk_code = %v, want 7700", code)
	}
}

func TestEmergencySquawkHijackAndRadioFailure(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[string]fleet.Kind{
		"7500": fleet.KindEmergencySquawkHijack,
		"7600": fleet.KindEmergencySquawkRadio,
	}
	for squawk, want := range cases {
		state := fleet.StateVector{Hex24: "A1B2C3", Squawk: squawk, HasSquawk: true, Timestamp: 1000}
		records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)
		if r, ok := hasKind(records, want); !ok {
			t.Errorf("squawk %s: Detect() did not emit %q", squawk, want)
		} else if r.Severity != fleet.SeverityCritical {
			t.Errorf("squawk %s: Severity = %q, want CRITICAL", squawk, r.Severity)
		}
	}
}

func TestNonEmergencySquawkDoesNotFire(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", Squawk: "1200", HasSquawk: true, Timestamp: 1000}
	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)
	if len(records) != 0 {
		t.Errorf("Detect() = %v, want no anomalies for routine squawk", records)
	}
}

// TestRapidDescentAwayFromAirport is scenario 4 (geo suppression itself is
// applied upstream of this package; the detector always reports the drop).
func TestRapidDescentAwayFromAirport(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{
		Hex24: "A1B2C3", BaroAltitude: 800, HasBaroAltitude: true,
		VerticalRate: -12, HasVerticalRate: true,
		Timestamp: 1000, LastContact: 1000,
	}
	history := []fleet.HistoryRecord{
		{Altitude: 1200, HasAltitude: true, Timestamp: 980, LastContact: 980},
	}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})

	r, ok := hasKind(records, fleet.KindRapidDescent)
	if !ok {
		t.Fatal("Detect() did not emit rapid_descent")
	}
	if r.Severity != fleet.SeverityCritical {
		t.Errorf("Severity = %q, want CRITICAL", r.Severity)
	}
	if drop := r.Details["altitude_drop_ft"].(float64); drop != 1312 {
		t.Errorf("altitude_drop_ft = %v, want 1312", drop)
	}
	if prev := r.Details["previous_altitude_ft"].(float64); prev != 3937 {
		t.Errorf("previous_altitude_ft = %v, want 3937", prev)
	}
	if cur := r.Details["current_altitude_ft"].(float64); cur != 2625 {
		t.Errorf("current_altitude_ft = %v, want 2625", cur)
	}
	if w := r.Details["time_window_seconds"].(int64); w != 30 {
		t.Errorf("time_window_seconds = %v, want 30", w)
	}
}

func TestRapidDescentStopsAtFirstQualifyingPair(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", BaroAltitude: 500, HasBaroAltitude: true, Timestamp: 1000, LastContact: 1000}
	history := []fleet.HistoryRecord{
		{Altitude: 2000, HasAltitude: true, Timestamp: 985, LastContact: 985},
		{Altitude: 3000, HasAltitude: true, Timestamp: 975, LastContact: 975},
	}

	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})

	count := 0
	for _, r := range records {
		if r.Kind == fleet.KindRapidDescent {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("Detect() produced %d rapid_descent records, want exactly 1", count)
	}
}

func TestRapidDescentOutsideWindowIgnored(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{Hex24: "A1B2C3", BaroAltitude: 500, HasBaroAltitude: true, Timestamp: 1000, LastContact: 1000}
	history := []fleet.HistoryRecord{
		{Altitude: 3000, HasAltitude: true, Timestamp: 900, LastContact: 900},
	}
	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	if _, ok := hasKind(records, fleet.KindRapidDescent); ok {
		t.Error("Detect() emitted rapid_descent for a history point outside the lookback window")
	}
}

func TestRapidClimbFires(t *testing.T) {
	cfg := DefaultConfig()
	state := fleet.StateVector{
		Hex24: "A1B2C3", VerticalRate: 12, HasVerticalRate: true,
		GeoAltitude: 1000, HasGeoAltitude: true, Timestamp: 1000,
	}
	records := Detect(cfg, map[string]fleet.StateVector{"A1B2C3": state}, nil, nil)
	r, ok := hasKind(records, fleet.KindRapidClimb)
	if !ok {
		t.Fatal("Detect() did not emit rapid_climb")
	}
	if r.Severity != fleet.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", r.Severity)
	}
}

// TestCoordinatedLaunch is scenario 5.
func TestCoordinatedLaunch(t *testing.T) {
	cfg := DefaultConfig()
	current := map[string]fleet.StateVector{
		"AAAAAA": {Hex24: "AAAAAA", OnGround: false, LastContact: 1000, Callsign: "RESCUE1", HasCallsign: true},
		"BBBBBB": {Hex24: "BBBBBB", OnGround: false, LastContact: 1060, Callsign: "RESCUE2", HasCallsign: true},
		"CCCCCC": {Hex24: "CCCCCC", OnGround: false, LastContact: 1120, Callsign: "RESCUE3", HasCallsign: true},
	}
	previous := map[string]fleet.HistoryRecord{
		"AAAAAA": {OnGround: true},
		"BBBBBB": {OnGround: true},
		"CCCCCC": {OnGround: true},
	}

	records := Detect(cfg, current, previous, nil)

	var launches []fleet.Record
	for _, r := range records {
		if r.Kind == fleet.KindMultipleLaunch {
			launches = append(launches, r)
		}
	}
	if len(launches) != 1 {
		t.Fatalf("Detect() produced %d multiple_launch records, want exactly 1", len(launches))
	}
	r := launches[0]
	if r.Hex24 != "" {
		t.Errorf("Hex24 = %q, want empty for a fleet-level anomaly", r.Hex24)
	}
	if count := r.Details["aircraft_count"].(int); count != 3 {
		t.Errorf("aircraft_count = %v, want 3", count)
	}
	if span := r.Details["time_span_seconds"].(int64); span != 120 {
		t.Errorf("time_span_seconds = %v, want 120", span)
	}
	if len(records) != 1 {
		t.Errorf("Detect() returned %d records, want only the fleet-level anomaly (no per-aircraft launch records)", len(records))
	}
}

func TestLaunchRequiresThreeAircraft(t *testing.T) {
	cfg := DefaultConfig()
	current := map[string]fleet.StateVector{
		"AAAAAA": {Hex24: "AAAAAA", OnGround: false, LastContact: 1000},
		"BBBBBB": {Hex24: "BBBBBB", OnGround: false, LastContact: 1010},
	}
	previous := map[string]fleet.HistoryRecord{
		"AAAAAA": {OnGround: true},
		"BBBBBB": {OnGround: true},
	}
	records := Detect(cfg, current, previous, nil)
	if _, ok := hasKind(records, fleet.KindMultipleLaunch); ok {
		t.Error("Detect() emitted multiple_launch for only 2 simultaneous launches")
	}
}

func TestLaunchOutsideWindowDoesNotFire(t *testing.T) {
	cfg := DefaultConfig()
	current := map[string]fleet.StateVector{
		"AAAAAA": {Hex24: "AAAAAA", OnGround: false, LastContact: 1000},
		"BBBBBB": {Hex24: "BBBBBB", OnGround: false, LastContact: 1100},
		"CCCCCC": {Hex24: "CCCCCC", OnGround: false, LastContact: 1800},
	}
	previous := map[string]fleet.HistoryRecord{
		"AAAAAA": {OnGround: true},
		"BBBBBB": {OnGround: true},
		"CCCCCC": {OnGround: true},
	}
	records := Detect(cfg, current, previous, nil)
	if _, ok := hasKind(records, fleet.KindMultipleLaunch); ok {
		t.Error("Detect() emitted multiple_launch spanning more than the configured window")
	}
}

func TestLaunchIgnoresAircraftWithoutPreviousState(t *testing.T) {
	cfg := DefaultConfig()
	current := map[string]fleet.StateVector{
		"AAAAAA": {Hex24: "AAAAAA", OnGround: false, LastContact: 1000},
		"BBBBBB": {Hex24: "BBBBBB", OnGround: false, LastContact: 1010},
		"CCCCCC": {Hex24: "CCCCCC", OnGround: false, LastContact: 1020},
	}
	previous := map[string]fleet.HistoryRecord{
		"AAAAAA": {OnGround: true},
		"BBBBBB": {OnGround: true},
		// CCCCCC has no previous state and must be ignored.
	}
	records := Detect(cfg, current, previous, nil)
	if _, ok := hasKind(records, fleet.KindMultipleLaunch); ok {
		t.Error("Detect() emitted multiple_launch with an aircraft lacking previous state")
	}
}

// TestHeadingWrapNoAnomaly and TestHeadingWrapErratic are scenario 6.
func TestHeadingWrapNoAnomaly(t *testing.T) {
	cfg := DefaultConfig()
	history := headingHistory(10, 350, 10, 350)
	current := map[string]fleet.StateVector{"A1B2C3": {Hex24: "A1B2C3", Heading: 10, HasHeading: true, Timestamp: 1000}}

	records := Detect(cfg, current, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	if _, ok := hasKind(records, fleet.KindErraticHeading); ok {
		t.Error("Detect() emitted erratic_heading for three 20° wrap-adjusted deltas")
	}
}

func TestHeadingWrapErratic(t *testing.T) {
	cfg := DefaultConfig()
	history := headingHistory(10, 190, 10, 190, 10)
	current := map[string]fleet.StateVector{"A1B2C3": {Hex24: "A1B2C3", Heading: 10, HasHeading: true, Timestamp: 1000}}

	records := Detect(cfg, current, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	r, ok := hasKind(records, fleet.KindErraticHeading)
	if !ok {
		t.Fatal("Detect() did not emit erratic_heading for four 180° deltas")
	}
	if large := r.Details["large_heading_changes"].(int); large < 3 {
		t.Errorf("large_heading_changes = %v, want >= 3", large)
	}
}

func headingHistory(headings ...float64) []fleet.HistoryRecord {
	out := make([]fleet.HistoryRecord, len(headings))
	for i, h := range headings {
		out[i] = fleet.HistoryRecord{Heading: h, HasHeading: true, Timestamp: int64(1000 - i*10)}
	}
	return out
}

func TestHoveringHighAltitudeFires(t *testing.T) {
	cfg := DefaultConfig()
	history := []fleet.HistoryRecord{
		{Altitude: 2000, HasAltitude: true, Velocity: 3, HasVelocity: true, Timestamp: 1000},
		{Altitude: 2010, HasAltitude: true, Velocity: 2, HasVelocity: true, Timestamp: 990},
		{Altitude: 1990, HasAltitude: true, Velocity: 4, HasVelocity: true, Timestamp: 980},
		{Altitude: 2005, HasAltitude: true, Velocity: 3, HasVelocity: true, Timestamp: 970},
		{Altitude: 1995, HasAltitude: true, Velocity: 2, HasVelocity: true, Timestamp: 960},
	}
	current := map[string]fleet.StateVector{"A1B2C3": {Hex24: "A1B2C3", Timestamp: 1010}}

	records := Detect(cfg, current, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	r, ok := hasKind(records, fleet.KindHoveringHighAltitude)
	if !ok {
		t.Fatal("Detect() did not emit hovering_high_altitude")
	}
	if r.Severity != fleet.SeverityLow {
		t.Errorf("Severity = %q, want LOW", r.Severity)
	}
}

func TestHoveringRequiresFiveHistoryEntries(t *testing.T) {
	cfg := DefaultConfig()
	history := []fleet.HistoryRecord{
		{Altitude: 2000, HasAltitude: true, Velocity: 3, HasVelocity: true, Timestamp: 1000},
		{Altitude: 2010, HasAltitude: true, Velocity: 2, HasVelocity: true, Timestamp: 990},
	}
	current := map[string]fleet.StateVector{"A1B2C3": {Hex24: "A1B2C3", Timestamp: 1010}}
	records := Detect(cfg, current, nil, map[string][]fleet.HistoryRecord{"A1B2C3": history})
	if _, ok := hasKind(records, fleet.KindHoveringHighAltitude); ok {
		t.Error("Detect() emitted hovering_high_altitude with fewer than 5 history entries")
	}
}

func TestDetectOutputIsSortedByHexThenKind(t *testing.T) {
	cfg := DefaultConfig()
	current := map[string]fleet.StateVector{
		"BBBBBB": {Hex24: "BBBBBB", Squawk: "7700", HasSquawk: true, Timestamp: 1000},
		"AAAAAA": {Hex24: "AAAAAA", Squawk: "7600", HasSquawk: true, Timestamp: 1000},
	}
	records := Detect(cfg, current, nil, nil)
	if len(records) != 2 {
		t.Fatalf("Detect() returned %d records, want 2", len(records))
	}
	if records[0].Hex24 != "AAAAAA" || records[1].Hex24 != "BBBBBB" {
		t.Errorf("Detect() order = [%s, %s], want hex24-sorted", records[0].Hex24, records[1].Hex24)
	}
}
