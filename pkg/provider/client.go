// Package provider is fleetwatch's provider client (component D): a
// typed wrapper around the ADS-B state-vector REST API, grounded on the
// teacher's AirplanesLiveClient for HTTP/retry/rate-limit-header shape
// and the teacher's flightaware.Client for authenticated, cached
// secondary endpoints.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hollis-aero/fleetwatch/pkg/cache"
	"github.com/hollis-aero/fleetwatch/pkg/ferrors"
	"github.com/hollis-aero/fleetwatch/pkg/fleet"
	"github.com/hollis-aero/fleetwatch/pkg/ratelimit"
)

// maxHexBatch is the largest hex24 list accepted per request; larger
// lists are split into chunks (spec §4.4).
const maxHexBatch = 1000

// Config configures a Client.
type Config struct {
	BaseURL string

	// OAuth2 client-credentials, preferred over Username/Password when set.
	ClientID     string
	ClientSecret string
	TokenURL     string

	// Legacy HTTP basic auth, used when OAuth2 credentials are absent.
	Username string
	Password string

	RateLimitCalls  int
	RateLimitPeriod time.Duration

	CacheDir          string
	CacheTTL          time.Duration
	AuthenticatedTTL  time.Duration // TTL for getFlightsByAircraft/getArrivals/getDepartures

	Timeout time.Duration
}

// Client queries the provider's ADS-B state-vector API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *authenticator
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	cacheTTL   time.Duration
	authTTL    time.Duration
	anonymous  bool
}

// NewClient builds a Client from cfg, applying the teacher's defaults
// pattern (zero-value fields fall back to sane production values).
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitCalls == 0 {
		cfg.RateLimitCalls = 10
	}
	if cfg.RateLimitPeriod == 0 {
		cfg.RateLimitPeriod = time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.AuthenticatedTTL == 0 {
		cfg.AuthenticatedTTL = time.Hour
	}

	auth := newAuthenticator(cfg)

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		auth:       auth,
		limiter:    ratelimit.New(cfg.RateLimitCalls, cfg.RateLimitPeriod),
		cache:      cache.New(cfg.CacheDir),
		cacheTTL:   cfg.CacheTTL,
		authTTL:    cfg.AuthenticatedTTL,
		anonymous:  auth.mode == authAnonymous,
	}
}

// Bbox is a geographic bounding box, min/max in decimal degrees.
type Bbox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// StatesResponse is the result of GetStates.
type StatesResponse struct {
	ServerTime int64
	States     []fleet.StateVector
}

// GetStates fetches current state vectors. If hexList is non-empty, the
// server is queried by hex24 and bbox is ignored even if also supplied
// (per spec §4.4, the client-side caller is responsible for filtering
// by bbox itself in that case — that filtering is the monitor service's
// job when building its current-state map, not this client's).
func (c *Client) GetStates(ctx context.Context, hexList []string, bbox *Bbox) (StatesResponse, error) {
	hexList, err := normalizeHexList(hexList)
	if err != nil {
		return StatesResponse{}, err
	}

	params := map[string]string{}
	if len(hexList) > 0 {
		params["icao24"] = strings.Join(hexList, ",")
	} else if bbox != nil {
		params["lamin"] = formatFloat(bbox.MinLat)
		params["lamax"] = formatFloat(bbox.MaxLat)
		params["lomin"] = formatFloat(bbox.MinLon)
		params["lomax"] = formatFloat(bbox.MaxLon)
	}

	if len(hexList) > maxHexBatch {
		return c.getStatesChunked(ctx, hexList)
	}

	body, err := c.getCached(ctx, "/states/all", params, c.cacheTTL)
	if err != nil {
		return StatesResponse{}, err
	}
	return parseStatesResponse(body)
}

func (c *Client) getStatesChunked(ctx context.Context, hexList []string) (StatesResponse, error) {
	var merged StatesResponse
	for start := 0; start < len(hexList); start += maxHexBatch {
		end := start + maxHexBatch
		if end > len(hexList) {
			end = len(hexList)
		}
		chunk := hexList[start:end]
		params := map[string]string{"icao24": strings.Join(chunk, ",")}
		body, err := c.getCached(ctx, "/states/all", params, c.cacheTTL)
		if err != nil {
			return StatesResponse{}, err
		}
		resp, err := parseStatesResponse(body)
		if err != nil {
			return StatesResponse{}, err
		}
		merged.States = append(merged.States, resp.States...)
		merged.ServerTime = resp.ServerTime
	}
	return merged, nil
}

// GetFlightsByAircraft returns flights for a single hex24 between begin
// and end (unix seconds). Authenticated endpoints are cached for
// AuthenticatedTTL (default 1h, spec §4.4).
func (c *Client) GetFlightsByAircraft(ctx context.Context, hex24 string, begin, end int64) ([]byte, error) {
	if c.anonymous {
		return nil, &ferrors.AuthError{Msg: "getFlightsByAircraft requires authentication"}
	}
	hex24, err := normalizeHex(hex24)
	if err != nil {
		return nil, err
	}
	params := map[string]string{
		"icao24": hex24,
		"begin":  strconv.FormatInt(begin, 10),
		"end":    strconv.FormatInt(end, 10),
	}
	return c.getCached(ctx, "/flights/aircraft", params, c.authTTL)
}

// GetArrivals returns arrivals at an airport between begin and end.
func (c *Client) GetArrivals(ctx context.Context, airportICAO string, begin, end int64) ([]byte, error) {
	if c.anonymous {
		return nil, &ferrors.AuthError{Msg: "getArrivals requires authentication"}
	}
	params := map[string]string{
		"airport": airportICAO,
		"begin":   strconv.FormatInt(begin, 10),
		"end":     strconv.FormatInt(end, 10),
	}
	return c.getCached(ctx, "/flights/arrival", params, c.authTTL)
}

// GetDepartures returns departures from an airport between begin and end.
func (c *Client) GetDepartures(ctx context.Context, airportICAO string, begin, end int64) ([]byte, error) {
	if c.anonymous {
		return nil, &ferrors.AuthError{Msg: "getDepartures requires authentication"}
	}
	params := map[string]string{
		"airport": airportICAO,
		"begin":   strconv.FormatInt(begin, 10),
		"end":     strconv.FormatInt(end, 10),
	}
	return c.getCached(ctx, "/flights/departure", params, c.authTTL)
}

// getCached performs a read-through cache lookup around a raw GET: a
// cache hit within TTL never touches the rate limiter (spec §4.3).
func (c *Client) getCached(ctx context.Context, endpoint string, params map[string]string, ttl time.Duration) ([]byte, error) {
	key := cache.Key(endpoint, params)
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, &ferrors.TransientError{Msg: "rate limiter wait cancelled", Err: err}
	}

	body, err := RetryWithBackoffResult(ctx, DefaultRetryConfig(), func() ([]byte, error) {
		return c.doGet(ctx, endpoint, params)
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, body, ttl)
	return body, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := c.auth.applyAuth(ctx, headerAdapter{req}); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ferrors.TransientError{Msg: fmt.Sprintf("request to %s failed: %v", endpoint, err), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &ferrors.AuthError{Msg: fmt.Sprintf("%s returned 401", endpoint)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ferrors.TransientError{Msg: fmt.Sprintf("%s rate limited", endpoint), RetryAfter: parseRetryAfter(resp.Header)}
	case resp.StatusCode >= 500 && resp.StatusCode <= 504 && resp.StatusCode != http.StatusNotImplemented:
		return nil, &ferrors.TransientError{Msg: fmt.Sprintf("%s returned %d", endpoint, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	return body, nil
}

type headerAdapter struct{ req *http.Request }

func (h headerAdapter) SetHeader(key, value string) { h.req.Header.Set(key, value) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// parseRetryAfter reads Retry-After as delay-seconds or an HTTP-date,
// returning 0 if absent or unparsable.
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}

// rawStatesResponse mirrors the provider's wire format: a positional
// tuple per aircraft (spec §4.4, indices 0-16).
type rawStatesResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

func parseStatesResponse(body []byte) (StatesResponse, error) {
	var raw rawStatesResponse
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&raw); err != nil {
		return StatesResponse{}, &ferrors.DataError{Msg: "failed to parse states response", Err: err}
	}

	out := StatesResponse{ServerTime: raw.Time}
	for _, row := range raw.States {
		sv, err := parseStateRow(row)
		if err != nil {
			// One malformed row is skipped, not fatal to the batch (spec §7).
			continue
		}
		out.States = append(out.States, sv)
	}
	return out, nil
}

// parseStateRow converts one positional state-vector tuple into a
// fleet.StateVector. Index layout (spec §4.4):
//
//	0 hex24, 1 callsign, 2 origin_country, 3 time_position, 4 last_contact,
//	5 lon, 6 lat, 7 baro_altitude, 8 on_ground, 9 velocity, 10 heading,
//	11 vertical_rate, 12 sensors, 13 geo_altitude, 14 squawk, 15 spi,
//	16 position_source
func parseStateRow(row []interface{}) (fleet.StateVector, error) {
	if len(row) < 17 {
		return fleet.StateVector{}, fmt.Errorf("state row has %d fields, want 17", len(row))
	}

	var sv fleet.StateVector

	hex24, ok := row[0].(string)
	if !ok || hex24 == "" {
		return fleet.StateVector{}, fmt.Errorf("state row missing hex24")
	}
	sv.Hex24 = strings.ToUpper(strings.TrimSpace(hex24))

	if callsign, ok := row[1].(string); ok {
		trimmed := strings.TrimSpace(callsign)
		if trimmed != "" {
			sv.Callsign, sv.HasCallsign = trimmed, true
		}
	}
	if country, ok := row[2].(string); ok {
		sv.OriginCountry = country
	}
	if tp, ok := asFloat(row[3]); ok {
		sv.TimePosition, sv.HasTimePosition = int64(tp), true
	}
	if lc, ok := asFloat(row[4]); ok {
		sv.LastContact = int64(lc)
	}
	lon, lonOK := asFloat(row[5])
	lat, latOK := asFloat(row[6])
	if lonOK && latOK {
		sv.Longitude, sv.Latitude, sv.HasPosition = lon, lat, true
	}
	if baro, ok := asFloat(row[7]); ok {
		sv.BaroAltitude, sv.HasBaroAltitude = baro, true
	}
	if onGround, ok := row[8].(bool); ok {
		sv.OnGround = onGround
	}
	if v, ok := asFloat(row[9]); ok {
		sv.Velocity, sv.HasVelocity = v, true
	}
	if h, ok := asFloat(row[10]); ok {
		sv.Heading, sv.HasHeading = h, true
	}
	if vr, ok := asFloat(row[11]); ok {
		sv.VerticalRate, sv.HasVerticalRate = vr, true
	}
	if geo, ok := asFloat(row[13]); ok {
		sv.GeoAltitude, sv.HasGeoAltitude = geo, true
	}
	if squawk, ok := row[14].(string); ok && squawk != "" {
		sv.Squawk, sv.HasSquawk = squawk, true
	}

	return sv, nil
}

func asFloat(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// normalizeHex trims, uppercases, and validates a single hex24.
func normalizeHex(hex24 string) (string, error) {
	h := strings.ToUpper(strings.TrimSpace(hex24))
	if !isValidHex24(h) {
		return "", &ferrors.DataError{Msg: fmt.Sprintf("invalid hex24 %q", hex24)}
	}
	return h, nil
}

// normalizeHexList trims, uppercases, and validates every entry.
func normalizeHexList(hexList []string) ([]string, error) {
	out := make([]string, 0, len(hexList))
	for _, h := range hexList {
		norm, err := normalizeHex(h)
		if err != nil {
			return nil, err
		}
		out = append(out, norm)
	}
	return out, nil
}

func isValidHex24(h string) bool {
	if len(h) != 6 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
