package monitor

import (
	"fmt"
	"strings"

	"github.com/hollis-aero/fleetwatch/pkg/ferrors"
	"github.com/hollis-aero/fleetwatch/pkg/provider"
)

// regionBboxes are coarse, hand-picked presets covering the named census
// regions (spec §6's MONITOR_REGION enum). Approximate by design: a
// region filter only narrows the provider query, it is not a precision
// boundary.
var regionBboxes = map[string]provider.Bbox{
	"northeast": {MinLat: 38.5, MaxLat: 47.5, MinLon: -80.5, MaxLon: -66.8},
	"midwest":   {MinLat: 36.0, MaxLat: 49.4, MinLon: -104.1, MaxLon: -80.5},
	"south":     {MinLat: 24.5, MaxLat: 39.5, MinLon: -106.7, MaxLon: -75.0},
	"west":      {MinLat: 31.3, MaxLat: 49.1, MinLon: -125.1, MaxLon: -102.0},
}

// stateBboxes are approximate bounding boxes for the contiguous United
// States, Alaska, Hawaii, and the District of Columbia, keyed by
// two-letter postal code. Used to derive a provider bbox from
// MONITOR_STATE (spec §6); merged by union when more than one state is
// listed.
var stateBboxes = map[string]provider.Bbox{
	"AL": {MinLat: 30.1, MaxLat: 35.0, MinLon: -88.5, MaxLon: -84.9},
	"AK": {MinLat: 51.2, MaxLat: 71.5, MinLon: -179.1, MaxLon: -129.9},
	"AZ": {MinLat: 31.3, MaxLat: 37.0, MinLon: -114.8, MaxLon: -109.0},
	"AR": {MinLat: 33.0, MaxLat: 36.5, MinLon: -94.6, MaxLon: -89.6},
	"CA": {MinLat: 32.5, MaxLat: 42.0, MinLon: -124.5, MaxLon: -114.1},
	"CO": {MinLat: 37.0, MaxLat: 41.0, MinLon: -109.1, MaxLon: -102.0},
	"CT": {MinLat: 40.9, MaxLat: 42.1, MinLon: -73.8, MaxLon: -71.8},
	"DE": {MinLat: 38.4, MaxLat: 39.9, MinLon: -75.8, MaxLon: -75.0},
	"DC": {MinLat: 38.8, MaxLat: 39.0, MinLon: -77.1, MaxLon: -76.9},
	"FL": {MinLat: 24.4, MaxLat: 31.0, MinLon: -87.6, MaxLon: -79.9},
	"GA": {MinLat: 30.4, MaxLat: 35.0, MinLon: -85.6, MaxLon: -80.8},
	"HI": {MinLat: 18.9, MaxLat: 22.3, MinLon: -160.3, MaxLon: -154.8},
	"ID": {MinLat: 42.0, MaxLat: 49.0, MinLon: -117.2, MaxLon: -111.0},
	"IL": {MinLat: 36.9, MaxLat: 42.5, MinLon: -91.5, MaxLon: -87.0},
	"IN": {MinLat: 37.8, MaxLat: 41.8, MinLon: -88.1, MaxLon: -84.8},
	"IA": {MinLat: 40.4, MaxLat: 43.5, MinLon: -96.6, MaxLon: -90.1},
	"KS": {MinLat: 37.0, MaxLat: 40.0, MinLon: -102.1, MaxLon: -94.6},
	"KY": {MinLat: 36.5, MaxLat: 39.1, MinLon: -89.6, MaxLon: -81.9},
	"LA": {MinLat: 28.9, MaxLat: 33.0, MinLon: -94.0, MaxLon: -88.8},
	"ME": {MinLat: 43.0, MaxLat: 47.5, MinLon: -71.1, MaxLon: -66.9},
	"MD": {MinLat: 37.9, MaxLat: 39.7, MinLon: -79.5, MaxLon: -75.0},
	"MA": {MinLat: 41.2, MaxLat: 42.9, MinLon: -73.5, MaxLon: -69.9},
	"MI": {MinLat: 41.7, MaxLat: 48.3, MinLon: -90.4, MaxLon: -82.1},
	"MN": {MinLat: 43.5, MaxLat: 49.4, MinLon: -97.2, MaxLon: -89.5},
	"MS": {MinLat: 30.2, MaxLat: 35.0, MinLon: -91.7, MaxLon: -88.1},
	"MO": {MinLat: 36.0, MaxLat: 40.6, MinLon: -95.8, MaxLon: -89.1},
	"MT": {MinLat: 44.4, MaxLat: 49.0, MinLon: -116.1, MaxLon: -104.0},
	"NE": {MinLat: 40.0, MaxLat: 43.0, MinLon: -104.1, MaxLon: -95.3},
	"NV": {MinLat: 35.0, MaxLat: 42.0, MinLon: -120.0, MaxLon: -114.0},
	"NH": {MinLat: 42.7, MaxLat: 45.3, MinLon: -72.6, MaxLon: -70.6},
	"NJ": {MinLat: 38.9, MaxLat: 41.4, MinLon: -75.6, MaxLon: -73.9},
	"NM": {MinLat: 31.3, MaxLat: 37.0, MinLon: -109.1, MaxLon: -103.0},
	"NY": {MinLat: 40.5, MaxLat: 45.0, MinLon: -79.8, MaxLon: -71.9},
	"NC": {MinLat: 33.8, MaxLat: 36.6, MinLon: -84.4, MaxLon: -75.4},
	"ND": {MinLat: 45.9, MaxLat: 49.0, MinLon: -104.1, MaxLon: -96.6},
	"OH": {MinLat: 38.4, MaxLat: 42.0, MinLon: -84.9, MaxLon: -80.5},
	"OK": {MinLat: 33.6, MaxLat: 37.0, MinLon: -103.1, MaxLon: -94.4},
	"OR": {MinLat: 42.0, MaxLat: 46.3, MinLon: -124.6, MaxLon: -116.5},
	"PA": {MinLat: 39.7, MaxLat: 42.3, MinLon: -80.6, MaxLon: -74.7},
	"RI": {MinLat: 41.1, MaxLat: 42.1, MinLon: -71.9, MaxLon: -71.1},
	"SC": {MinLat: 32.0, MaxLat: 35.3, MinLon: -83.4, MaxLon: -78.5},
	"SD": {MinLat: 42.5, MaxLat: 45.9, MinLon: -104.1, MaxLon: -96.4},
	"TN": {MinLat: 35.0, MaxLat: 36.7, MinLon: -90.3, MaxLon: -81.6},
	"TX": {MinLat: 25.8, MaxLat: 36.5, MinLon: -106.7, MaxLon: -93.5},
	"UT": {MinLat: 37.0, MaxLat: 42.0, MinLon: -114.1, MaxLon: -109.0},
	"VT": {MinLat: 42.7, MaxLat: 45.1, MinLon: -73.5, MaxLon: -71.5},
	"VA": {MinLat: 36.5, MaxLat: 39.5, MinLon: -83.7, MaxLon: -75.2},
	"WA": {MinLat: 45.5, MaxLat: 49.1, MinLon: -124.8, MaxLon: -116.9},
	"WV": {MinLat: 37.2, MaxLat: 40.6, MinLon: -82.7, MaxLon: -77.7},
	"WI": {MinLat: 42.5, MaxLat: 47.1, MinLon: -92.9, MaxLon: -86.8},
	"WY": {MinLat: 41.0, MaxLat: 45.0, MinLon: -111.1, MaxLon: -104.0},
}

// ComputeBbox derives the provider bbox from region and states per spec
// §4.9/§6: a non-empty states list always wins over region; an empty
// region and empty states list means no geographic filter (nil bbox,
// not an error). An unrecognized region or state code is a *ferrors.ConfigError,
// fatal at init.
func ComputeBbox(region string, states []string) (*provider.Bbox, error) {
	if len(states) > 0 {
		return bboxForStates(states)
	}

	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" || region == "all" {
		return nil, nil
	}
	b, ok := regionBboxes[region]
	if !ok {
		return nil, &ferrors.ConfigError{Msg: fmt.Sprintf("unknown region %q", region)}
	}
	return &b, nil
}

func bboxForStates(states []string) (*provider.Bbox, error) {
	var result *provider.Bbox
	for _, raw := range states {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		b, ok := stateBboxes[code]
		if !ok {
			return nil, &ferrors.ConfigError{Msg: fmt.Sprintf("unknown state code %q", code)}
		}
		if result == nil {
			merged := b
			result = &merged
			continue
		}
		if b.MinLat < result.MinLat {
			result.MinLat = b.MinLat
		}
		if b.MaxLat > result.MaxLat {
			result.MaxLat = b.MaxLat
		}
		if b.MinLon < result.MinLon {
			result.MinLon = b.MinLon
		}
		if b.MaxLon > result.MaxLon {
			result.MaxLon = b.MaxLon
		}
	}
	return result, nil
}
