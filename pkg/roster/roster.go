// Package roster implements the Registry Filter (component A): it reduces a
// national aircraft registration table to a curated roster by matching model
// codes, owner-name keywords, and (for the police domain) tail-number
// patterns, each survivor carrying an ordered match-reasons list and a
// confidence label.
package roster

import (
	"fmt"
	"regexp"
	"strings"
)

// Confidence is the filter's assessment of how strong a roster entry's
// evidence is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Domain selects which keyword/model/exclusion set the filter applies.
type Domain string

const (
	DomainEMS    Domain = "ems"
	DomainPolice Domain = "police"
)

var hex24Pattern = regexp.MustCompile(`^[0-9A-F]{6}$`)

// policeTailPattern matches N-numbers ending in a law-enforcement suffix,
// e.g. N123PD, N45SO, N9HP.
var policeTailPattern = regexp.MustCompile(`^N\d+(PD|SO|SP|HP|LE|ST)$`)

// Entry is a single survivor of the registry filter: a target aircraft the
// monitor service will track.
type Entry struct {
	Tail         string
	Hex24        string
	ModelCode    string
	ModelName    string
	Manufacturer string
	OwnerName    string
	OwnerCity    string
	OwnerState   string
	MatchReasons []string
	Confidence   Confidence
}

// ModelInfo is a single row of the aircraft-reference table (ACFTREF), keyed
// by model code elsewhere.
type ModelInfo struct {
	Manufacturer string
	Model        string
}

// Row is a single row of the national registration table (MASTER), trimmed
// to the fields the filter needs.
type Row struct {
	NNumber        string
	ModeSHex       string
	ModelCode      string
	OwnerName      string
	OwnerCity      string
	OwnerState     string
	StatusCode     string
	TypeAircraft   string
	TypeEngine     string
	TypeRegistrant string
}

// airlinePatterns excludes airliner models by normalized-name substring;
// shared across both domains.
var airlinePatterns = []string{
	"A320", "A321", "A330", "A350", "A380",
	"737", "747", "757", "767", "777", "787",
	"MD80", "MD90", "MD11", "CRJ", "ERJ", "E170", "E175",
}

// museumKeywords and commercialExclusionKeywords are police-only exclusions:
// donated/static-display aircraft and national cargo carriers are never
// plausible law-enforcement operators regardless of model or owner-name
// match.
var museumKeywords = []string{
	"MUSEUM", "MUSEUMS", "AVIATION MUSEUM", "AIR MUSEUM",
	"FLIGHT MUSEUM", "AEROSPACE MUSEUM", "AIRSPACE MUSEUM",
	"MUSEUM OF", "AIR & SPACE MUSEUM", "AIR AND SPACE MUSEUM",
}

var commercialExclusionKeywords = []string{
	"FEDERAL EXPRESS", "FEDERAL EXPRESS CORP", "FEDEX", "FED EX",
	"FEDERAL EXPRESS CORPORATION", "FEDEX EXPRESS", "FEDEX CORP",
}

var ownerSuffixes = []string{
	" LLC", " INC", " CORP", " CORPORATION", " LTD", " LIMITED",
	" LP", " LLP", " PC", " PLLC", " LLC.", " INC.", " CORP.",
}

var llcIndicators = []string{" LLC", " LLC.", " LIMITED LIABILITY", " L.L.C.", " L L C"}

// Filter matches registration rows against a domain's model and owner
// keyword sets.
type Filter struct {
	domain         Domain
	modelLookup    map[string]ModelInfo
	modelPatterns  []string // normalized, matched by prefix or substring
	keywords       []string // uppercase owner-name keywords
	requirePolice  bool     // police-only additional exclusions + tail pattern
}

// NewEMSFilter builds a Filter for the EMS/air-ambulance domain.
func NewEMSFilter(modelLookup map[string]ModelInfo, modelPatterns, keywords []string) *Filter {
	return &Filter{
		domain:        DomainEMS,
		modelLookup:   modelLookup,
		modelPatterns: normalizeAll(modelPatterns),
		keywords:      upperAll(keywords),
	}
}

// NewPoliceFilter builds a Filter for the law-enforcement domain, which adds
// museum/cargo/individual/private-LLC exclusions and an N-number pattern
// match on top of the EMS rules.
func NewPoliceFilter(modelLookup map[string]ModelInfo, modelPatterns, keywords []string) *Filter {
	return &Filter{
		domain:        DomainPolice,
		modelLookup:   modelLookup,
		modelPatterns: normalizeAll(modelPatterns),
		keywords:      upperAll(keywords),
		requirePolice: true,
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalizeModelString(s)
	}
	return out
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

var punctuation = regexp.MustCompile(`[^\w\s]`)
var whitespace = regexp.MustCompile(`\s+`)

func normalizeModelString(model string) string {
	if model == "" {
		return ""
	}
	normalized := punctuation.ReplaceAllString(strings.ToUpper(model), "")
	normalized = whitespace.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// isValidHex24 validates a Mode-S hex address: exactly 6 hex characters
// after trimming and uppercasing.
func isValidHex24(hex string) bool {
	return hex24Pattern.MatchString(strings.ToUpper(strings.TrimSpace(hex)))
}

// Evaluate applies the eligibility gates and positive-match rules to a
// single row, returning the resulting Entry and whether it survived.
func (f *Filter) Evaluate(row Row) (Entry, bool) {
	if excluded, _ := f.shouldExclude(row); excluded {
		return Entry{}, false
	}

	hex := strings.ToUpper(strings.TrimSpace(row.ModeSHex))
	if !isValidHex24(hex) {
		return Entry{}, false
	}
	nNumber := strings.TrimSpace(row.NNumber)
	if nNumber == "" {
		return Entry{}, false
	}

	var reasons []string
	modelMatch, modelName, manufacturer := f.matchesModel(row.ModelCode)
	ownerMatch := f.matchesOwnerKeyword(row.OwnerName)

	var tailMatch bool
	if f.requirePolice {
		tailMatch = policeTailPattern.MatchString(strings.ToUpper(nNumber))
	}

	if modelMatch {
		reasons = append(reasons, fmt.Sprintf("model:%s", modelName))
	}
	if ownerMatch {
		reasons = append(reasons, "owner_keyword")
	}
	if tailMatch {
		reasons = append(reasons, "tail_pattern")
	}

	if !modelMatch && !ownerMatch && !tailMatch {
		return Entry{}, false
	}

	if modelName == "" {
		modelName = "Unknown"
	}
	if manufacturer == "" {
		manufacturer = "Unknown"
	}

	return Entry{
		Tail:         nNumber,
		Hex24:        hex,
		ModelCode:    row.ModelCode,
		ModelName:    modelName,
		Manufacturer: manufacturer,
		OwnerName:    strings.TrimSpace(row.OwnerName),
		OwnerCity:    strings.TrimSpace(row.OwnerCity),
		OwnerState:   strings.TrimSpace(row.OwnerState),
		MatchReasons: reasons,
		Confidence:   f.confidence(modelMatch, ownerMatch, tailMatch),
	}, true
}

// confidence implements the spec's confidence table (same rule for both
// domains): model plus either an owner-keyword or a tail-pattern match is
// high; model alone, or a tail-pattern plus an owner-keyword match without a
// model match, is medium; anything else that still qualified (owner alone,
// or pattern alone) is low.
func (f *Filter) confidence(modelMatch, ownerMatch, tailMatch bool) Confidence {
	switch {
	case modelMatch && (ownerMatch || tailMatch):
		return ConfidenceHigh
	case modelMatch || (tailMatch && ownerMatch):
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// shouldExclude applies the eligibility gates. Returns (excluded, reason).
func (f *Filter) shouldExclude(row Row) (bool, string) {
	if strings.TrimSpace(row.StatusCode) != "V" {
		return true, "status_code"
	}
	if row.TypeAircraft == "4" && row.TypeEngine == "1" {
		return true, "piston_single_engine"
	}

	if info, ok := f.modelLookup[row.ModelCode]; ok {
		normalized := normalizeModelString(info.Model)
		for _, pattern := range airlinePatterns {
			if strings.Contains(normalized, pattern) {
				return true, "airline_aircraft"
			}
		}
	}

	if !f.requirePolice {
		return false, ""
	}

	owner := strings.ToUpper(strings.TrimSpace(row.OwnerName))
	if owner != "" {
		for _, kw := range museumKeywords {
			if strings.Contains(owner, kw) {
				return true, "museum_owned"
			}
		}
		for _, kw := range commercialExclusionKeywords {
			if strings.Contains(owner, kw) {
				return true, "commercial_cargo"
			}
		}
	}

	if strings.TrimSpace(row.TypeRegistrant) == "1" {
		return true, "individual_owner"
	}

	if owner != "" {
		isLLC := false
		for _, ind := range llcIndicators {
			if strings.Contains(owner, ind) {
				isLLC = true
				break
			}
		}
		if isLLC {
			hasKeyword := false
			for _, kw := range f.keywords {
				if strings.Contains(owner, kw) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				return true, "private_llc"
			}
		}
	}

	return false, ""
}

func (f *Filter) matchesModel(modelCode string) (bool, string, string) {
	if modelCode == "" {
		return false, "", ""
	}
	info, ok := f.modelLookup[modelCode]
	if !ok {
		return false, "", ""
	}
	normalized := normalizeModelString(info.Model)
	for _, pattern := range f.modelPatterns {
		if pattern == "" {
			continue
		}
		if strings.HasPrefix(normalized, pattern) || strings.Contains(normalized, pattern) {
			return true, info.Model, info.Manufacturer
		}
	}
	return false, "", ""
}

func (f *Filter) matchesOwnerKeyword(ownerName string) bool {
	if ownerName == "" {
		return false
	}
	normalized := normalizeOwnerName(ownerName)
	for _, kw := range f.keywords {
		if len(kw) <= 3 {
			if wordBoundaryMatch(normalized, kw) {
				return true
			}
			continue
		}
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// normalizeOwnerName strips common business-entity suffixes so "LIFE FLIGHT
// LLC" and "LIFE FLIGHT" match the same keyword set.
func normalizeOwnerName(owner string) string {
	normalized := strings.ToUpper(owner)
	for _, suffix := range ownerSuffixes {
		normalized = strings.TrimSuffix(strings.TrimSpace(normalized), suffix)
	}
	return whitespace.ReplaceAllString(strings.TrimSpace(normalized), " ")
}

func wordBoundaryMatch(s, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(s)
}
