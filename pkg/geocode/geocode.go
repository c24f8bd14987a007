// Package geocode implements the Reverse Geocoder (component J): a
// best-effort HTTP client over an OpenStreetMap-compatible reverse
// endpoint, throttled to at most 1 request/second, plus a Broadcastify
// listen-URL derivation from the resolved county/state. Grounded on the
// original's location_utils.py; the process-wide throttle is an
// explicit collaborator field rather than module-global state, and
// uses golang.org/x/time/rate the
// way the teacher's flightaware.Client throttles outbound calls.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://nominatim.openstreetmap.org/reverse"
	requestTimeout = 3 * time.Second
)

// Location is the resolved address fragment for a coordinate.
type Location struct {
	City   string
	County string
	State  string
}

// Geocoder is the reverse-geocoder collaborator: an HTTP client, a
// process-wide rate limiter, and an optional static county→ctid table
// for Broadcastify URL derivation.
type Geocoder struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	countyCodes map[countyKey]int
}

type countyKey struct {
	county string // normalized: lowercase, suffix-stripped
	state  string // two-letter abbreviation, uppercase
}

// New returns a Geocoder throttled to at most 1 request/second. userAgent
// is sent on every request; Nominatim's usage policy requires it.
func New(baseURL, userAgent string) *Geocoder {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Geocoder{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

// LoadCountyCodes parses a tab-separated `code\tcounty\tstate_abbr` table
// (the Broadcastify ctid mapping) into the Geocoder. Malformed lines are
// skipped. Calling this is optional: without it, BroadcastifyURL always
// falls back to a search URL.
func (g *Geocoder) LoadCountyCodes(data []byte) {
	g.countyCodes = make(map[countyKey]int)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		var code int
		if _, err := fmt.Sscanf(parts[0], "%d", &code); err != nil {
			continue
		}
		key := countyKey{county: normalizeCounty(parts[1]), state: strings.ToUpper(strings.TrimSpace(parts[2]))}
		g.countyCodes[key] = code
	}
}

var countySuffixes = []string{" county", " parish", " borough", " municipality"}

func normalizeCounty(county string) string {
	normalized := strings.ToLower(strings.TrimSpace(county))
	for _, suffix := range countySuffixes {
		normalized = strings.TrimSuffix(normalized, suffix)
	}
	return strings.TrimSpace(normalized)
}

type nominatimResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		County       string `json:"county"`
		Municipality string `json:"municipality"`
		State        string `json:"state"`
		Region       string `json:"region"`
	} `json:"address"`
}

// Reverse resolves lat/lon to a Location. The process-wide throttle
// blocks until a request slot is available (honoring ctx cancellation);
// any HTTP, decode, or status failure returns (Location{}, false) — this
// is always a best-effort lookup, never an error the caller must handle.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (Location, bool) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Location{}, false
	}

	reqURL := fmt.Sprintf("%s?lat=%f&lon=%f&format=json&addressdetails=1", g.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Location{}, false
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Location{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, false
	}

	var parsed nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Location{}, false
	}

	city := firstNonEmpty(parsed.Address.City, parsed.Address.Town, parsed.Address.Village)
	county := firstNonEmpty(parsed.Address.County, parsed.Address.Municipality, city)
	state := firstNonEmpty(parsed.Address.State, parsed.Address.Region)

	if county == "" || state == "" {
		return Location{}, false
	}
	return Location{City: city, County: county, State: state}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// BroadcastifyURL derives a best-effort listen URL for loc, preferring a
// direct ctid link when the county-code table resolves one, falling back
// to a search URL otherwise. Never returns an error: an empty loc yields
// the generic listen page.
func BroadcastifyURL(g *Geocoder, loc Location) string {
	const fallback = "https://www.broadcastify.com/listen/"

	if loc.County == "" || loc.State == "" {
		return fallback
	}

	if g != nil && g.countyCodes != nil {
		key := countyKey{county: normalizeCounty(loc.County), state: normalizeStateAbbr(loc.State)}
		if code, ok := g.countyCodes[key]; ok {
			return fmt.Sprintf("https://www.broadcastify.com/listen/ctid/%d", code)
		}
	}

	query := fmt.Sprintf("%s %s", strings.TrimSuffix(loc.County, " County"), loc.State)
	return "https://www.broadcastify.com/listen/?q=" + url.QueryEscape(query)
}

var stateNameToAbbr = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

func normalizeStateAbbr(state string) string {
	trimmed := strings.TrimSpace(state)
	if len(trimmed) == 2 {
		return strings.ToUpper(trimmed)
	}
	if abbr, ok := stateNameToAbbr[strings.ToLower(trimmed)]; ok {
		return abbr
	}
	return strings.ToUpper(trimmed)
}
