// Command monitor is fleetwatch's daemon entry point (component I): it
// loads configuration, wires the roster, provider client, state store,
// geo context, reverse geocoder, and notifier together, then runs the
// monitor service's tick loop until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hollis-aero/fleetwatch/internal/config"
	"github.com/hollis-aero/fleetwatch/internal/monitor"
	"github.com/hollis-aero/fleetwatch/internal/store"
	"github.com/hollis-aero/fleetwatch/pkg/fleet"
	"github.com/hollis-aero/fleetwatch/pkg/geo"
	"github.com/hollis-aero/fleetwatch/pkg/geocode"
	"github.com/hollis-aero/fleetwatch/pkg/notify"
	"github.com/hollis-aero/fleetwatch/pkg/provider"
	"github.com/hollis-aero/fleetwatch/pkg/roster"
)

var (
	configPath  string
	dataDirFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll ADS-B state vectors for a curated aircraft roster and emit anomaly alerts",
	RunE:  runMonitor,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "configs/config.json", "Path to configuration file")
	rootCmd.Flags().StringVar(&dataDirFlag, "data-dir", "", "Override the configured data directory")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	configureLogging(cfg.Log)

	log.Info().Str("data_dir", cfg.DataDir).Str("database_type", cfg.Monitor.DatabaseType).Msg("starting fleetwatch monitor")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	rosterSet, err := loadRoster(cfg)
	if err != nil {
		// Config errors (missing roster) are fatal to process init, per spec §7.
		return fmt.Errorf("failed to load roster: %w", err)
	}
	log.Info().Int("roster_size", rosterSet.Len()).Msg("roster loaded")

	ctx := context.Background()
	dbPath := filepath.Join(cfg.DataDir, "monitor_state.db")
	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer db.Close()

	historyRepo := store.NewHistoryRepository(db)
	anomalyRepo := store.NewAnomalyRepository(db)

	client := provider.NewClient(provider.Config{
		BaseURL:          cfg.Provider.BaseURL,
		ClientID:         cfg.Provider.ClientID,
		ClientSecret:     cfg.Provider.ClientSecret,
		TokenURL:         cfg.Provider.TokenURL,
		Username:         cfg.Provider.Username,
		Password:         cfg.Provider.Password,
		RateLimitCalls:   cfg.Provider.RateLimitCalls,
		RateLimitPeriod:  cfg.Provider.RateLimitPeriodDuration(),
		CacheDir:         filepath.Join(cfg.DataDir, "cache"),
		CacheTTL:         time.Duration(cfg.Provider.CacheMaxAgeSeconds) * time.Second,
		AuthenticatedTTL: time.Hour,
	})

	geoCtx := geo.NewContext(
		resolveDataPath(cfg.DataDir, cfg.Geo.AirportsFile),
		resolveDataPath(cfg.DataDir, cfg.Geo.HospitalsFile),
		func(msg string) { log.Warn().Str("component", "geo").Msg(msg) },
	)

	geocoder := geocode.New(cfg.Geo.GeocoderBaseURL, cfg.Geo.GeocoderUserAgent)

	notifier, err := notify.New(
		filepath.Join(cfg.DataDir, "anomalies.jsonl"),
		os.Stdout,
		func(msg string) { log.Warn().Str("component", "notify").Msg(msg) },
	)
	if err != nil {
		return fmt.Errorf("failed to open anomaly notifier: %w", err)
	}
	defer notifier.Close()

	svcCfg := monitor.ConfigFromFile(cfg)
	svc, err := monitor.NewService(
		svcCfg,
		client,
		historyRepo,
		anomalyRepo,
		rosterSet,
		geoCtx,
		notifier,
		geocoder,
		func(msg string) { log.Warn().Str("component", "monitor").Msg(msg) },
	)
	if err != nil {
		return fmt.Errorf("failed to construct monitor service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go drainAnomalies(svc.Anomalies())
	go runHistoryCleanup(runCtx, db, cfg.Monitor.HistoryRetentionDays)

	if err := svc.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start monitor service: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	svc.Stop()
	log.Info().Msg("fleetwatch monitor stopped")
	return nil
}

// loadRoster reads the domain-appropriate roster file from the data
// directory (spec §6's persisted layout: ems_aircraft.json or
// police_aircraft.json) produced by the registryfilter batch job.
func loadRoster(cfg *config.Config) (roster.Set, error) {
	name := "ems_aircraft.json"
	if cfg.Monitor.DatabaseType == "police" {
		name = "police_aircraft.json"
	}
	entries, err := roster.Load(filepath.Join(cfg.DataDir, name))
	if err != nil {
		return roster.Set{}, err
	}
	return roster.NewSet(entries), nil
}

// resolveDataPath joins a relative geo-reference-file path against the
// data directory, leaving absolute paths untouched.
func resolveDataPath(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// configureLogging sets up zerolog's global writer and level from
// LogConfig (SPEC_FULL.md §9): console for interactive use, JSON for
// container/log-shipping use.
func configureLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// drainAnomalies consumes the service's anomaly stream so a UI (out of
// scope for this binary) could subscribe without the tick loop ever
// blocking on a full channel; here it just logs a summary line.
func drainAnomalies(ch <-chan fleet.Record) {
	for rec := range ch {
		hex := rec.Hex24
		if hex == "" {
			hex = "FLEET"
		}
		log.Info().Str("kind", string(rec.Kind)).Str("severity", string(rec.Severity)).Str("hex24", hex).Msg("anomaly detected")
	}
}

// runHistoryCleanup applies the history retention policy once per day,
// independent of the tick loop (spec §4.5/§3: retention is bounded but
// "never trimmed during a poll").
func runHistoryCleanup(ctx context.Context, db *store.DB, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.Cleanup(ctx, retentionDays)
			if err != nil {
				log.Warn().Err(err).Msg("history cleanup failed")
				continue
			}
			log.Info().Int64("rows_deleted", n).Msg("history cleanup complete")
		}
	}
}
