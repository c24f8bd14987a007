package geo

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Point is a named location loaded from a reference CSV (an airport or
// a hospital), per spec §4.6.
type Point struct {
	Name string
	Geographic
}

// pointSet lazily loads a CSV file of (lat,lon,name) rows on first
// query. Invalid or out-of-range rows are skipped with a single
// warning for the whole source; a missing file produces a warning, not
// a fatal error (spec §4.6).
type pointSet struct {
	mu       sync.Mutex
	path     string
	loaded   bool
	points   []Point
	onWarn   func(string)
}

func newPointSet(path string, onWarn func(string)) *pointSet {
	return &pointSet{path: path, onWarn: onWarn}
}

func (ps *pointSet) warn(format string, args ...interface{}) {
	if ps.onWarn != nil {
		ps.onWarn(fmt.Sprintf(format, args...))
	}
}

func (ps *pointSet) get() []Point {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.loaded {
		return ps.points
	}
	ps.loaded = true

	f, err := os.Open(ps.path)
	if err != nil {
		ps.warn("geo: could not open reference file %s: %v", ps.path, err)
		return ps.points
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := parseCSVLine(line)
		if len(fields) < 3 {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		name := strings.TrimSpace(fields[2])
		if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			skipped++
			continue
		}
		ps.points = append(ps.points, Point{
			Name:       name,
			Geographic: Geographic{Latitude: lat, Longitude: lon},
		})
	}
	if skipped > 0 {
		ps.warn("geo: skipped %d invalid rows in %s", skipped, ps.path)
	}
	return ps.points
}

// nearest returns the closest point to from and its distance in km.
// If the set has no points, it returns (+Inf, nil).
func (ps *pointSet) nearest(from Geographic) (float64, *Point) {
	points := ps.get()
	best := math.Inf(1)
	var bestPoint *Point
	for i := range points {
		d := DistanceKm(from, points[i].Geographic)
		if d < best {
			best = d
			bestPoint = &points[i]
		}
	}
	return best, bestPoint
}

// parseCSVLine splits a reference-file row on commas, honoring double
// quotes around fields that themselves contain a comma.
func parseCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuote := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch ch {
		case '"':
			inQuote = !inQuote
		case ',':
			if inQuote {
				current.WriteByte(ch)
			} else {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// Context answers nearest-airport and nearest-hospital queries against
// two lazily loaded reference point sets.
type Context struct {
	airports  *pointSet
	hospitals *pointSet
}

// NewContext returns a Context that will load airportsPath and
// hospitalsPath on first use. onWarn, if non-nil, receives one message
// per problem source (missing file, or rows skipped); it is never
// called more than once per source per process.
func NewContext(airportsPath, hospitalsPath string, onWarn func(string)) *Context {
	return &Context{
		airports:  newPointSet(airportsPath, onWarn),
		hospitals: newPointSet(hospitalsPath, onWarn),
	}
}

// NearestAirport returns the distance in km and name of the closest
// known airport to (lat, lon), or (+Inf, "") if no airport data loaded.
func (c *Context) NearestAirport(lat, lon float64) (float64, string) {
	d, p := c.airports.nearest(Geographic{Latitude: lat, Longitude: lon})
	if p == nil {
		return math.Inf(1), ""
	}
	return d, p.Name
}

// NearestHospital returns the distance in km and name of the closest
// known hospital to (lat, lon), or (+Inf, "") if no hospital data loaded.
func (c *Context) NearestHospital(lat, lon float64) (float64, string) {
	d, p := c.hospitals.nearest(Geographic{Latitude: lat, Longitude: lon})
	if p == nil {
		return math.Inf(1), ""
	}
	return d, p.Name
}

// IsNearAirport reports whether (lat, lon) is within radiusKm of the
// nearest known airport.
func (c *Context) IsNearAirport(lat, lon, radiusKm float64) bool {
	d, _ := c.NearestAirport(lat, lon)
	return d <= radiusKm
}

// IsNearHospital reports whether (lat, lon) is within radiusKm of the
// nearest known hospital.
func (c *Context) IsNearHospital(lat, lon, radiusKm float64) bool {
	d, _ := c.NearestHospital(lat, lon)
	return d <= radiusKm
}
