// Package anomaly implements the Anomaly Detector (component G): a pure
// function over (current, previous, history) producing candidate anomaly
// records. It never calls out to the network, the clock, or the store —
// every input is supplied by the caller, per spec §4.7.
package anomaly

import (
	"math"
	"sort"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

// Config holds every per-rule threshold the detector uses, loaded from
// internal/config's AnomalyConfig.
type Config struct {
	SpeedThresholdKnots       float64
	RapidClimbRateFtMin       float64
	RapidDescentFt            float64
	RapidDescentWindowSeconds int64
	MultiLaunchWindowSeconds  int64
	ErraticHeadingDegrees     float64
	HoverAltitudeFt           float64
	HoverVelocityKnots        float64
}

// DefaultConfig mirrors internal/config.DefaultConfig's Anomaly section.
func DefaultConfig() Config {
	return Config{
		SpeedThresholdKnots:       150,
		RapidClimbRateFtMin:       2000,
		RapidDescentFt:            1000,
		RapidDescentWindowSeconds: 30,
		MultiLaunchWindowSeconds:  300,
		ErraticHeadingDegrees:     90,
		HoverAltitudeFt:           5000,
		HoverVelocityKnots:        30,
	}
}

const (
	mpsToKnots   = 1.94384
	mpsToFtPerMin = 196.85
	metersToFeet = 3.28084
)

var emergencySquawks = map[string]fleet.Kind{
	"7500": fleet.KindEmergencySquawkHijack,
	"7600": fleet.KindEmergencySquawkRadio,
	"7700": fleet.KindEmergencySquawkEmergency,
}

// Detect evaluates every per-aircraft rule for each hex in current, plus the
// cross-fleet multiple_launch rule, and returns the resulting records sorted
// by (hex24, kind) for deterministic output.
func Detect(cfg Config, current map[string]fleet.StateVector, previous map[string]fleet.HistoryRecord, history map[string][]fleet.HistoryRecord) []fleet.Record {
	var out []fleet.Record

	for hex, state := range current {
		h := history[hex]
		out = append(out, checkHighSpeed(cfg, hex, state)...)
		out = append(out, checkSuddenSpeedIncrease(cfg, hex, state, h)...)
		out = append(out, checkRapidClimb(cfg, hex, state)...)
		out = append(out, checkRapidDescent(cfg, hex, state, h)...)
		out = append(out, checkEmergencySquawk(hex, state)...)
		out = append(out, checkErraticHeading(cfg, hex, h)...)
		out = append(out, checkHoveringHighAltitude(cfg, hex, h)...)
	}

	if launch, ok := checkMultipleLaunch(cfg, current, previous); ok {
		out = append(out, launch)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Hex24 != out[j].Hex24 {
			return out[i].Hex24 < out[j].Hex24
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round0(v float64) float64 { return math.Round(v) }

func checkHighSpeed(cfg Config, hex string, s fleet.StateVector) []fleet.Record {
	if !s.HasVelocity {
		return nil
	}
	knots := s.Velocity * mpsToKnots
	if knots <= cfg.SpeedThresholdKnots {
		return nil
	}
	return []fleet.Record{{
		Timestamp: s.Timestamp,
		Hex24:     hex,
		Kind:      fleet.KindHighSpeed,
		Severity:  fleet.SeverityHigh,
		Details: map[string]interface{}{
			"velocity_knots":  round1(knots),
			"velocity_ms":     round1(s.Velocity),
			"threshold_knots": cfg.SpeedThresholdKnots,
		},
	}}
}

// checkSuddenSpeedIncrease compares the current velocity against a baseline
// drawn from history, excluding the single most-recent stored entry (history
// is newest-first; see DESIGN.md's note on this rule).
func checkSuddenSpeedIncrease(cfg Config, hex string, s fleet.StateVector, history []fleet.HistoryRecord) []fleet.Record {
	if !s.HasVelocity || len(history) < 2 {
		return nil
	}

	end := 4
	if len(history) < end {
		end = len(history)
	}
	baseline := history[1:end]

	var sum float64
	var count int
	for _, h := range baseline {
		if !h.HasVelocity || h.Velocity <= 0 {
			continue
		}
		sum += h.Velocity
		count++
	}
	if count == 0 {
		return nil
	}

	baselineMS := sum / float64(count)
	baselineKnots := baselineMS * mpsToKnots
	knots := s.Velocity * mpsToKnots

	if baselineMS <= 0 || knots <= 30 {
		return nil
	}

	increasePct := ((s.Velocity - baselineMS) / baselineMS) * 100
	absoluteIncrease := knots - baselineKnots
	if increasePct <= 60 || absoluteIncrease <= 20 {
		return nil
	}

	return []fleet.Record{{
		Timestamp: s.Timestamp,
		Hex24:     hex,
		Kind:      fleet.KindSuddenSpeedIncrease,
		Severity:  fleet.SeverityMedium,
		Details: map[string]interface{}{
			"baseline_velocity_knots": round1(baselineKnots),
			"current_velocity_knots":  round1(knots),
			"increase_percent":        round1(increasePct),
			"absolute_increase_knots": round1(absoluteIncrease),
			"baseline_samples":        count,
		},
	}}
}

func checkRapidClimb(cfg Config, hex string, s fleet.StateVector) []fleet.Record {
	if !s.HasVerticalRate {
		return nil
	}
	ftMin := s.VerticalRate * mpsToFtPerMin
	if ftMin <= cfg.RapidClimbRateFtMin {
		return nil
	}
	details := map[string]interface{}{
		"vertical_rate_ft_min": round0(ftMin),
		"threshold_ft_min":     cfg.RapidClimbRateFtMin,
	}
	if alt, ok := s.Altitude(); ok {
		details["altitude_ft"] = round0(alt * metersToFeet)
	} else {
		details["altitude_ft"] = nil
	}
	return []fleet.Record{{
		Timestamp: s.Timestamp,
		Hex24:     hex,
		Kind:      fleet.KindRapidClimb,
		Severity:  fleet.SeverityHigh,
		Details:   details,
	}}
}

// checkRapidDescent scans history as stored (newest-first) and stops at the
// first entry within the lookback window whose altitude drop exceeds the
// threshold — the spec pins this down as "first qualifying pair wins".
func checkRapidDescent(cfg Config, hex string, s fleet.StateVector, history []fleet.HistoryRecord) []fleet.Record {
	currentAlt, ok := s.Altitude()
	if !ok || len(history) == 0 {
		return nil
	}

	currentTime := s.LastContact
	if currentTime == 0 {
		currentTime = s.Timestamp
	}
	cutoff := currentTime - cfg.RapidDescentWindowSeconds

	for _, past := range history {
		pastTime := past.LastContact
		if pastTime == 0 {
			pastTime = past.Timestamp
		}
		if pastTime < cutoff {
			continue
		}
		if !past.HasAltitude {
			continue
		}
		dropFt := (past.Altitude - currentAlt) * metersToFeet
		if dropFt <= cfg.RapidDescentFt {
			continue
		}
		return []fleet.Record{{
			Timestamp: s.Timestamp,
			Hex24:     hex,
			Kind:      fleet.KindRapidDescent,
			Severity:  fleet.SeverityCritical,
			Details: map[string]interface{}{
				"altitude_drop_ft":     round0(dropFt),
				"previous_altitude_ft": round0(past.Altitude * metersToFeet),
				"current_altitude_ft":  round0(currentAlt * metersToFeet),
				"time_window_seconds":  cfg.RapidDescentWindowSeconds,
			},
		}}
	}
	return nil
}

func checkEmergencySquawk(hex string, s fleet.StateVector) []fleet.Record {
	if !s.HasSquawk {
		return nil
	}
	kind, ok := emergencySquawks[s.Squawk]
	if !ok {
		return nil
	}
	details := map[string]interface{}{
		"squawk_code": s.Squawk,
	}
	if s.HasCallsign {
		details["callsign"] = s.Callsign
	} else {
		details["callsign"] = nil
	}
	return []fleet.Record{{
		Timestamp: s.Timestamp,
		Hex24:     hex,
		Kind:      kind,
		Severity:  fleet.SeverityCritical,
		Details:   details,
	}}
}

func headingDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func checkErraticHeading(cfg Config, hex string, history []fleet.HistoryRecord) []fleet.Record {
	if len(history) < 3 {
		return nil
	}

	var deltas []float64
	for i := 0; i < len(history)-1; i++ {
		a, b := history[i], history[i+1]
		if !a.HasHeading || !b.HasHeading {
			continue
		}
		deltas = append(deltas, headingDelta(a.Heading, b.Heading))
	}
	if len(deltas) == 0 {
		return nil
	}

	var large int
	var sum float64
	for _, d := range deltas {
		sum += d
		if d > cfg.ErraticHeadingDegrees {
			large++
		}
	}
	if large < 3 {
		return nil
	}

	return []fleet.Record{{
		Timestamp: history[0].Timestamp,
		Hex24:     hex,
		Kind:      fleet.KindErraticHeading,
		Severity:  fleet.SeverityMedium,
		Details: map[string]interface{}{
			"large_heading_changes": large,
			"total_changes":         len(deltas),
			"average_change":        round1(sum / float64(len(deltas))),
		},
	}}
}

func checkHoveringHighAltitude(cfg Config, hex string, history []fleet.HistoryRecord) []fleet.Record {
	if len(history) < 5 {
		return nil
	}
	window := history[:5]

	var altitudes []float64
	var velocities []float64
	for _, h := range window {
		if h.HasAltitude && h.Altitude != 0 {
			altitudes = append(altitudes, h.Altitude)
		}
		if h.HasVelocity && h.Velocity != 0 {
			velocities = append(velocities, h.Velocity)
		}
	}
	if len(altitudes) < 3 || len(velocities) < 3 {
		return nil
	}

	var altSum, velSum float64
	for _, a := range altitudes {
		altSum += a
	}
	for _, v := range velocities {
		velSum += v
	}
	avgAltFt := (altSum / float64(len(altitudes))) * metersToFeet
	avgVelKnots := (velSum / float64(len(velocities))) * mpsToKnots

	if avgAltFt <= cfg.HoverAltitudeFt || avgVelKnots >= cfg.HoverVelocityKnots {
		return nil
	}

	return []fleet.Record{{
		Timestamp: window[0].Timestamp,
		Hex24:     hex,
		Kind:      fleet.KindHoveringHighAltitude,
		Severity:  fleet.SeverityLow,
		Details: map[string]interface{}{
			"average_altitude_ft":   round0(avgAltFt),
			"average_velocity_knots": round1(avgVelKnots),
		},
	}}
}

type launchEvent struct {
	hex       string
	timestamp int64
	callsign  string
	hasCall   bool
}

// checkMultipleLaunch looks for ≥3 simultaneous ground→air transitions
// within MultiLaunchWindowSeconds and, if found, emits a single fleet-level
// anomaly (hex24 empty) listing every involved aircraft.
func checkMultipleLaunch(cfg Config, current map[string]fleet.StateVector, previous map[string]fleet.HistoryRecord) (fleet.Record, bool) {
	var launches []launchEvent
	for hex, cur := range current {
		prev, ok := previous[hex]
		if !ok || !prev.OnGround || cur.OnGround {
			continue
		}
		ts := cur.LastContact
		if ts == 0 {
			ts = cur.Timestamp
		}
		launches = append(launches, launchEvent{hex: hex, timestamp: ts, callsign: cur.Callsign, hasCall: cur.HasCallsign})
	}

	if len(launches) < 3 {
		return fleet.Record{}, false
	}

	minTS, maxTS := launches[0].timestamp, launches[0].timestamp
	for _, l := range launches[1:] {
		if l.timestamp < minTS {
			minTS = l.timestamp
		}
		if l.timestamp > maxTS {
			maxTS = l.timestamp
		}
	}
	span := maxTS - minTS
	if span > cfg.MultiLaunchWindowSeconds {
		return fleet.Record{}, false
	}

	sort.Slice(launches, func(i, j int) bool { return launches[i].hex < launches[j].hex })

	aircraft := make([]map[string]interface{}, len(launches))
	for i, l := range launches {
		entry := map[string]interface{}{"icao24": l.hex}
		if l.hasCall {
			entry["callsign"] = l.callsign
		} else {
			entry["callsign"] = nil
		}
		aircraft[i] = entry
	}

	return fleet.Record{
		Timestamp: maxTS,
		Hex24:     "",
		Kind:      fleet.KindMultipleLaunch,
		Severity:  fleet.SeverityCritical,
		Details: map[string]interface{}{
			"aircraft_count":     len(launches),
			"time_span_seconds":  span,
			"aircraft":           aircraft,
		},
	}, true
}
