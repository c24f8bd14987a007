package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

// jsonEntry is the persisted shape of a roster entry (ems_aircraft.json /
// police_aircraft.json, spec §6). Field names are snake_case to match the
// registry filter's batch-job output format read by the monitor service.
type jsonEntry struct {
	Tail         string   `json:"tail_number"`
	Hex24        string   `json:"hex24"`
	ModelCode    string   `json:"model_code"`
	ModelName    string   `json:"model_name"`
	Manufacturer string   `json:"manufacturer"`
	OwnerName    string   `json:"owner_name"`
	OwnerCity    string   `json:"owner_city"`
	OwnerState   string   `json:"owner_state"`
	MatchReasons []string `json:"match_reasons"`
	Confidence   string   `json:"confidence"`
}

func toJSONEntry(e Entry) jsonEntry {
	return jsonEntry{
		Tail:         e.Tail,
		Hex24:        e.Hex24,
		ModelCode:    e.ModelCode,
		ModelName:    e.ModelName,
		Manufacturer: e.Manufacturer,
		OwnerName:    e.OwnerName,
		OwnerCity:    e.OwnerCity,
		OwnerState:   e.OwnerState,
		MatchReasons: e.MatchReasons,
		Confidence:   string(e.Confidence),
	}
}

func fromJSONEntry(j jsonEntry) Entry {
	return Entry{
		Tail:         j.Tail,
		Hex24:        j.Hex24,
		ModelCode:    j.ModelCode,
		ModelName:    j.ModelName,
		Manufacturer: j.Manufacturer,
		OwnerName:    j.OwnerName,
		OwnerCity:    j.OwnerCity,
		OwnerState:   j.OwnerState,
		MatchReasons: j.MatchReasons,
		Confidence:   Confidence(j.Confidence),
	}
}

// Save writes the roster as a JSON array to path, creating its parent
// directory if necessary. This is the Registry Filter's sole output.
func Save(path string, entries []Entry) error {
	out := make([]jsonEntry, len(entries))
	for i, e := range entries {
		out[i] = toJSONEntry(e)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create roster directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write roster file: %w", err)
	}
	return nil
}

// Load reads a roster JSON file written by Save.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	var in []jsonEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}
	out := make([]Entry, len(in))
	for i, j := range in {
		out[i] = fromJSONEntry(j)
	}
	return out, nil
}

// Set is the roster set (spec §3): the immutable-after-load collection of
// target aircraft, keyed by uppercase hex24. It is the monitor service's
// sole authority on which provider states to track.
type Set struct {
	byHex map[string]Entry
}

// NewSet builds a Set from loaded entries. Duplicate hex24s (should not
// occur in a well-formed roster file) keep the last entry.
func NewSet(entries []Entry) Set {
	s := Set{byHex: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		s.byHex[e.Hex24] = e
	}
	return s
}

// Contains reports whether hex24 (expected uppercase) is in the roster.
func (s Set) Contains(hex24 string) bool {
	_, ok := s.byHex[hex24]
	return ok
}

// Lookup returns the roster entry for hex24, if present.
func (s Set) Lookup(hex24 string) (Entry, bool) {
	e, ok := s.byHex[hex24]
	return e, ok
}

// Hexes returns the roster's hex24 set, order unspecified.
func (s Set) Hexes() []string {
	out := make([]string, 0, len(s.byHex))
	for hex := range s.byHex {
		out = append(out, hex)
	}
	return out
}

// Len returns the number of entries in the set.
func (s Set) Len() int {
	return len(s.byHex)
}

// AircraftInfo builds the anomaly-enrichment struct (spec §4.9 step 8) for
// a tracked hex24, or nil if it is not in the roster.
func (s Set) AircraftInfo(hex24 string) *fleet.AircraftInfo {
	e, ok := s.byHex[hex24]
	if !ok {
		return nil
	}
	return &fleet.AircraftInfo{
		NNumber:      e.Tail,
		ModelName:    e.ModelName,
		Manufacturer: e.Manufacturer,
		OwnerName:    e.OwnerName,
		OwnerCity:    e.OwnerCity,
		OwnerState:   e.OwnerState,
	}
}
