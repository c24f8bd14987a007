// Package notify implements the Notifier (component H): it formats an
// anomaly record to a structured JSONL log line and an optional console
// line. Formatting is presentational only — it never alters the record
// passed in, per spec §4.8.
package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

// Notifier writes anomaly records to a JSONL log file and, optionally,
// a console stream. The log file handle is opened once on construction
// and released by Close, so the file handle is scoped to the notifier's
// lifetime rather than held in a global.
type Notifier struct {
	console io.Writer
	mu      sync.Mutex
	file    *os.File
	onWarn  func(string)
}

// New opens logPath (creating its parent directory if missing) and
// returns a Notifier that appends one JSON object per anomaly to it.
// console, if non-nil, also receives a human-readable line per anomaly.
// onWarn, if non-nil, is called with a message when a log write fails;
// log failures are best-effort and never returned as an error.
func New(logPath string, console io.Writer, onWarn func(string)) (*Notifier, error) {
	n := &Notifier{console: console, onWarn: onWarn}

	if logPath == "" {
		return n, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open anomaly log: %w", err)
	}
	n.file = f
	return n, nil
}

// Close releases the log file handle, if one is open.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.file == nil {
		return nil
	}
	return n.file.Close()
}

// logLine is the persisted JSONL shape (spec §6): one JSON object per
// line, field names matching the spec's external vocabulary exactly
// (icao24, type), not the internal Record field names.
type logLine struct {
	Timestamp    int64                  `json:"timestamp"`
	ICAO24       *string                `json:"icao24"`
	Type         fleet.Kind             `json:"type"`
	Severity     fleet.Severity         `json:"severity"`
	Details      map[string]interface{} `json:"details"`
	AircraftInfo *aircraftInfoLine      `json:"aircraft_info,omitempty"`
}

// aircraftInfoLine is the optional roster-enrichment object spec §6
// attaches to a log line once the aircraft has been identified.
type aircraftInfoLine struct {
	NNumber         string `json:"n_number"`
	ModelName       string `json:"model_name"`
	Manufacturer    string `json:"manufacturer"`
	OwnerName       string `json:"owner_name"`
	OwnerCity       string `json:"owner_city"`
	OwnerState      string `json:"owner_state"`
	FlightAwareURL  string `json:"flightaware_url"`
	BroadcastifyURL string `json:"broadcastify_url"`
}

// Notify writes r to the log file (if configured) and, if a console
// writer was supplied, prints a human-readable line. A log write
// failure is reported via onWarn and otherwise ignored.
func (n *Notifier) Notify(r fleet.Record) {
	if n.console != nil {
		n.mu.Lock()
		_, _ = n.console.Write([]byte(formatConsoleLine(r)))
		n.mu.Unlock()
	}
	n.writeLog(r)
}

func (n *Notifier) writeLog(r fleet.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.file == nil {
		return
	}

	line := logLine{Timestamp: r.Timestamp, Type: r.Kind, Severity: r.Severity, Details: r.Details}
	if r.Hex24 != "" {
		line.ICAO24 = &r.Hex24
	}
	if r.AircraftInfo != nil {
		info := r.AircraftInfo
		line.AircraftInfo = &aircraftInfoLine{
			NNumber:         info.NNumber,
			ModelName:       info.ModelName,
			Manufacturer:    info.Manufacturer,
			OwnerName:       info.OwnerName,
			OwnerCity:       info.OwnerCity,
			OwnerState:      info.OwnerState,
			FlightAwareURL:  info.FlightAwareURL,
			BroadcastifyURL: info.BroadcastifyURL,
		}
	}

	data, err := json.Marshal(line)
	if err != nil {
		if n.onWarn != nil {
			n.onWarn(fmt.Sprintf("failed to marshal anomaly record: %v", err))
		}
		return
	}
	data = append(data, '\n')

	if _, err := n.file.Write(data); err != nil {
		if n.onWarn != nil {
			n.onWarn(fmt.Sprintf("failed to write anomaly log: %v", err))
		}
	}
}

var severityIndicator = map[fleet.Severity]string{
	fleet.SeverityCritical: "!!",
	fleet.SeverityHigh:     "!",
	fleet.SeverityMedium:   "*",
	fleet.SeverityLow:      "-",
}

// formatConsoleLine renders r as a multi-line, human-readable block.
func formatConsoleLine(r fleet.Record) string {
	var b strings.Builder

	hex := r.Hex24
	if hex == "" {
		hex = "FLEET"
	}
	indicator := severityIndicator[r.Severity]
	if indicator == "" {
		indicator = "?"
	}

	fmt.Fprintf(&b, "%s [%s] %s\n", indicator, r.Severity, time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Kind: %s\n", r.Kind)
	fmt.Fprintf(&b, "  Aircraft: %s\n", hex)

	if r.AircraftInfo != nil {
		info := r.AircraftInfo
		fmt.Fprintf(&b, "  N-Number: %s\n", info.NNumber)
		if info.FlightAwareURL != "" {
			fmt.Fprintf(&b, "  FlightAware: %s\n", info.FlightAwareURL)
		}
		if info.BroadcastifyURL != "" {
			fmt.Fprintf(&b, "  Local PD Radio: %s\n", info.BroadcastifyURL)
		}
		fmt.Fprintf(&b, "  Model: %s (%s)\n", info.ModelName, info.Manufacturer)
		owner := info.OwnerName
		if len(owner) > 50 {
			owner = owner[:47] + "..."
		}
		fmt.Fprintf(&b, "  Owner: %s\n", owner)
		if loc := strings.Trim(strings.TrimSpace(info.OwnerCity+", "+info.OwnerState), ", "); loc != "" {
			fmt.Fprintf(&b, "  Location: %s\n", loc)
		}
	}

	appendDetailLines(&b, r)
	b.WriteString("\n")
	return b.String()
}

func appendDetailLines(b *strings.Builder, r fleet.Record) {
	d := r.Details
	switch r.Kind {
	case fleet.KindHighSpeed:
		fmt.Fprintf(b, "  Speed: %v knots (threshold: %v)\n", d["velocity_knots"], d["threshold_knots"])
	case fleet.KindSuddenSpeedIncrease:
		fmt.Fprintf(b, "  Speed increase: %v%%\n", d["increase_percent"])
		fmt.Fprintf(b, "  Baseline: %v knots, current: %v knots\n", d["baseline_velocity_knots"], d["current_velocity_knots"])
	case fleet.KindRapidClimb:
		fmt.Fprintf(b, "  Climb rate: %v ft/min\n", d["vertical_rate_ft_min"])
	case fleet.KindRapidDescent:
		fmt.Fprintf(b, "  Altitude drop: %v ft (from %v to %v)\n", d["altitude_drop_ft"], d["previous_altitude_ft"], d["current_altitude_ft"])
	case fleet.KindEmergencySquawkHijack, fleet.KindEmergencySquawkRadio, fleet.KindEmergencySquawkEmergency:
		fmt.Fprintf(b, "  Squawk: %v\n", d["squawk_code"])
	case fleet.KindMultipleLaunch:
		fmt.Fprintf(b, "  Aircraft launched: %v over %v seconds\n", d["aircraft_count"], d["time_span_seconds"])
	case fleet.KindErraticHeading:
		fmt.Fprintf(b, "  Large heading changes: %v (avg %v°)\n", d["large_heading_changes"], d["average_change"])
	case fleet.KindHoveringHighAltitude:
		fmt.Fprintf(b, "  Average altitude: %v ft, average speed: %v knots\n", d["average_altitude_ft"], d["average_velocity_knots"])
	}
	if callsign, ok := d["callsign"]; ok && callsign != nil {
		fmt.Fprintf(b, "  Callsign: %v\n", callsign)
	}
}
