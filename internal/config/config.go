// Package config is fleetwatch's configuration loader: a JSON file with
// environment-variable overrides, in the shape of the teacher's
// pkg/config — a Config struct tree, Load/Save, DefaultConfig, and an
// applyEnvironmentOverrides pass, re-specialized for this domain.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the complete fleetwatch configuration.
type Config struct {
	DataDir  string         `json:"data_dir"`
	Log      LogConfig      `json:"log"`
	Provider ProviderConfig `json:"provider"`
	Monitor  MonitorConfig  `json:"monitor"`
	Geo      GeoConfig      `json:"geo"`
	Anomaly  AnomalyConfig  `json:"anomaly"`
}

// LogConfig controls the operational (non-anomaly) logger.
type LogConfig struct {
	Level  string `json:"level"`  // trace,debug,info,warn,error
	Format string `json:"format"` // console,json
}

// ProviderConfig configures the ADS-B state-vector provider client.
type ProviderConfig struct {
	BaseURL string `json:"base_url"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`

	Username string `json:"username"`
	Password string `json:"password"`

	RateLimitCalls  int     `json:"rate_limit_calls"`
	RateLimitPeriod float64 `json:"rate_limit_period_seconds"`

	CacheMaxAgeSeconds int `json:"cache_max_age_seconds"`
}

// MonitorConfig configures the monitor service's tick loop.
type MonitorConfig struct {
	// DatabaseType selects which roster the monitor loads: "ems" or "police".
	DatabaseType string `json:"database_type"`

	// Region is a named bounding box (northeast, midwest, south, west, all)
	// or empty. Exactly one of Region or States determines the bbox used
	// for provider queries; an empty/nil value on both means no geo filter.
	Region string `json:"region"`

	// States is a list of two-letter state codes, alternative to Region.
	States []string `json:"states"`

	IntervalSeconds int  `json:"interval_seconds"`
	SkipInteractive bool `json:"skip_interactive"`

	CredentialsFile string `json:"credentials_file"`

	HistoryRetentionDays int `json:"history_retention_days"`
	HistoryWindowSize    int `json:"history_window_size"`
}

// GeoConfig configures the geo context's reference point sets and
// suppression radii.
type GeoConfig struct {
	AirportsFile  string  `json:"airports_file"`
	HospitalsFile string  `json:"hospitals_file"`
	NearAirportKm float64 `json:"near_airport_km"`
	NearHospitalKm float64 `json:"near_hospital_km"`

	GeocoderBaseURL  string `json:"geocoder_base_url"`
	GeocoderUserAgent string `json:"geocoder_user_agent"`
}

// AnomalyConfig configures every per-rule threshold the detector uses.
type AnomalyConfig struct {
	SpeedThresholdKnots         float64 `json:"speed_threshold_knots"`
	RapidClimbRateFtMin         float64 `json:"rapid_climb_rate_ft_min"`
	RapidDescentFt              float64 `json:"rapid_descent_ft"`
	RapidDescentWindowSeconds   int64   `json:"rapid_descent_window_seconds"`
	MultiLaunchWindowSeconds    int64   `json:"multi_launch_window_seconds"`
	ErraticHeadingDegrees       float64 `json:"erratic_heading_degrees"`
	HoverAltitudeFt             float64 `json:"hover_altitude_ft"`
	HoverVelocityKnots          float64 `json:"hover_velocity_knots"`
}

// Load reads configuration from a JSON file, applying environment
// overrides afterward. A missing file is not an error: it yields
// DefaultConfig() with overrides still applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

// Save writes the configuration to a JSON file, creating its parent
// directory if necessary.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns the documented defaults (SPEC_FULL.md §6).
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Provider: ProviderConfig{
			BaseURL:            "https://opensky-network.org/api",
			RateLimitCalls:     10,
			RateLimitPeriod:    1.0,
			CacheMaxAgeSeconds: 60,
		},
		Monitor: MonitorConfig{
			DatabaseType:         "ems",
			IntervalSeconds:      60,
			HistoryRetentionDays: 30,
			HistoryWindowSize:    20,
		},
		Geo: GeoConfig{
			AirportsFile:      "airports.csv",
			HospitalsFile:     "hospitals.csv",
			NearAirportKm:     5.0,
			NearHospitalKm:    3.0,
			GeocoderUserAgent: "fleetwatch/1.0",
		},
		Anomaly: AnomalyConfig{
			SpeedThresholdKnots:       150,
			RapidClimbRateFtMin:       2000,
			RapidDescentFt:            1000,
			RapidDescentWindowSeconds: 30,
			MultiLaunchWindowSeconds:  300,
			ErraticHeadingDegrees:     90,
			HoverAltitudeFt:           5000,
			HoverVelocityKnots:        30,
		},
	}
}

// applyEnvironmentOverrides applies the environment variables documented
// in SPEC_FULL.md §6, keeping secrets out of the config file.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("FLEETWATCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FLEETWATCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLEETWATCH_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	if v := os.Getenv("OPENSKY_CLIENT_ID"); v != "" {
		c.Provider.ClientID = v
	}
	if v := os.Getenv("OPENSKY_CLIENT_SECRET"); v != "" {
		c.Provider.ClientSecret = v
	}
	if v := os.Getenv("OPENSKY_USERNAME"); v != "" {
		c.Provider.Username = v
	}
	if v := os.Getenv("OPENSKY_PASSWORD"); v != "" {
		c.Provider.Password = v
	}
	if v := os.Getenv("OPENSKY_TOKEN_URL"); v != "" {
		c.Provider.TokenURL = v
	}
	if v := os.Getenv("OPENSKY_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("OPENSKY_RATE_LIMIT_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Provider.RateLimitCalls = n
		}
	}
	if v := os.Getenv("OPENSKY_RATE_LIMIT_PERIOD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Provider.RateLimitPeriod = f
		}
	}
	if v := os.Getenv("CACHE_MAX_AGE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Provider.CacheMaxAgeSeconds = n
		}
	}

	if v := os.Getenv("MONITOR_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.IntervalSeconds = n
		}
	}
	if v := os.Getenv("MONITOR_REGION"); v != "" {
		c.Monitor.Region = v
	}
	if v := os.Getenv("MONITOR_STATE"); v != "" {
		c.Monitor.States = strings.Split(v, ",")
	}

	if v := os.Getenv("ANOMALY_SPEED_THRESHOLD_KNOTS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.SpeedThresholdKnots = f
		}
	}
	if v := os.Getenv("ANOMALY_MULTI_LAUNCH_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Anomaly.MultiLaunchWindowSeconds = n
		}
	}
	if v := os.Getenv("ANOMALY_RAPID_CLIMB_RATE_FT_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.RapidClimbRateFtMin = f
		}
	}
	if v := os.Getenv("ANOMALY_RAPID_DESCENT_FT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.RapidDescentFt = f
		}
	}
	if v := os.Getenv("ANOMALY_RAPID_DESCENT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Anomaly.RapidDescentWindowSeconds = n
		}
	}
	if v := os.Getenv("ANOMALY_ERRATIC_HEADING_DEGREES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.ErraticHeadingDegrees = f
		}
	}
	if v := os.Getenv("ANOMALY_HOVER_ALTITUDE_FT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.HoverAltitudeFt = f
		}
	}
	if v := os.Getenv("ANOMALY_HOVER_VELOCITY_KNOTS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Anomaly.HoverVelocityKnots = f
		}
	}

	if v := os.Getenv("GEO_NEAR_AIRPORT_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Geo.NearAirportKm = f
		}
	}
	if v := os.Getenv("GEO_NEAR_HOSPITAL_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Geo.NearHospitalKm = f
		}
	}
	if v := os.Getenv("GEOCODER_BASE_URL"); v != "" {
		c.Geo.GeocoderBaseURL = v
	}
	if v := os.Getenv("GEOCODER_USER_AGENT"); v != "" {
		c.Geo.GeocoderUserAgent = v
	}

	if v := os.Getenv("HISTORY_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.HistoryRetentionDays = n
		}
	}
	if v := os.Getenv("HISTORY_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.HistoryWindowSize = n
		}
	}
}

// RateLimitPeriodDuration converts Provider.RateLimitPeriod (seconds)
// into a time.Duration for the rate limiter.
func (p ProviderConfig) RateLimitPeriodDuration() time.Duration {
	return time.Duration(p.RateLimitPeriod * float64(time.Second))
}
