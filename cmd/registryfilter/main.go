// Command registryfilter is the one-shot registry-filter batch producer
// (component A, spec §4.1): it reads the FAA civil aircraft registration
// master file and aircraft-reference file, applies the EMS or police
// domain's eligibility gates and match rules, and writes a target roster
// JSON file the monitor service loads at startup. Failures here are
// fatal to the batch and never reach the monitor process.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hollis-aero/fleetwatch/pkg/roster"
)

var (
	masterPath    string
	acftrefPath   string
	keywordsPath  string
	domainFlag    string
	outPath       string
	logFormatFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "registryfilter: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "registryfilter",
	Short: "Filter the FAA registry down to a curated EMS or police aircraft roster",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&masterPath, "master", "data/MASTER.txt", "Path to the FAA MASTER registration file")
	rootCmd.Flags().StringVar(&acftrefPath, "acftref", "data/ACFTREF.txt", "Path to the FAA ACFTREF aircraft-reference file")
	rootCmd.Flags().StringVar(&keywordsPath, "keywords", "", "Path to a JSON file of domain keywords/model patterns (optional, built-in defaults used if absent)")
	rootCmd.Flags().StringVar(&domainFlag, "domain", "ems", "Target domain: ems or police")
	rootCmd.Flags().StringVar(&outPath, "out", "ems_aircraft.json", "Output roster file path")
	rootCmd.Flags().StringVar(&logFormatFlag, "log-format", "console", "Operational log format: console or json")
}

func run(cmd *cobra.Command, args []string) error {
	if logFormatFlag == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	domain := roster.Domain(domainFlag)
	if domain != roster.DomainEMS && domain != roster.DomainPolice {
		return fmt.Errorf("invalid --domain %q: want ems or police", domainFlag)
	}

	log.Info().Str("domain", string(domain)).Str("master", masterPath).Str("acftref", acftrefPath).Msg("starting registry filter")

	modelLookup, err := loadModelLookup(acftrefPath)
	if err != nil {
		return fmt.Errorf("failed to load aircraft reference table: %w", err)
	}
	log.Info().Int("models", len(modelLookup)).Msg("loaded aircraft reference table")

	kw := loadKeywordConfig(keywordsPath, domain)

	var filter *roster.Filter
	if domain == roster.DomainPolice {
		filter = roster.NewPoliceFilter(modelLookup, kw.ModelPatterns, kw.Keywords)
	} else {
		filter = roster.NewEMSFilter(modelLookup, kw.ModelPatterns, kw.Keywords)
	}

	rows, err := loadMasterRows(masterPath)
	if err != nil {
		return fmt.Errorf("failed to load registration master file: %w", err)
	}
	log.Info().Int("rows", len(rows)).Msg("loaded registration rows")

	var entries []roster.Entry
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		entry, ok := filter.Evaluate(row)
		if !ok {
			continue
		}
		if seen[entry.Hex24] {
			continue
		}
		seen[entry.Hex24] = true
		entries = append(entries, entry)
	}

	if err := roster.Save(outPath, entries); err != nil {
		return fmt.Errorf("failed to write roster file: %w", err)
	}

	summarize(entries)
	log.Info().Int("roster_size", len(entries)).Str("out", outPath).Msg("registry filter complete")
	return nil
}

func summarize(entries []roster.Entry) {
	var high, medium, low int
	for _, e := range entries {
		switch e.Confidence {
		case roster.ConfidenceHigh:
			high++
		case roster.ConfidenceMedium:
			medium++
		default:
			low++
		}
	}
	log.Info().Int("high", high).Int("medium", medium).Int("low", low).Msg("confidence breakdown")
}

// keywordConfig is the optional external override for a domain's model
// patterns and owner-name keywords (spec §4.1). Absent a file, each
// domain falls back to a conservative built-in default.
type keywordConfig struct {
	ModelPatterns []string `json:"model_patterns"`
	Keywords      []string `json:"keywords"`
}

func loadKeywordConfig(path string, domain roster.Domain) keywordConfig {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var cfg keywordConfig
			if err := json.Unmarshal(data, &cfg); err == nil {
				return cfg
			}
			log.Warn().Str("path", path).Err(err).Msg("failed to parse keywords file, using built-in defaults")
		} else {
			log.Warn().Str("path", path).Err(err).Msg("could not read keywords file, using built-in defaults")
		}
	}
	if domain == roster.DomainPolice {
		return defaultPoliceKeywords
	}
	return defaultEMSKeywords
}

var defaultEMSKeywords = keywordConfig{
	ModelPatterns: []string{
		"EC135", "EC145", "AS350", "AS365", "BELL 407", "BELL 429", "BELL 206",
		"BK117", "A109", "A119", "EC130", "H135", "H145", "H125",
		"KING AIR", "LEARJET", "CITATION", "PILATUS PC-12",
	},
	Keywords: []string{
		"LIFE FLIGHT", "LIFEFLIGHT", "AIR EVAC", "AIRMED", "MEDFLIGHT", "MEDEVAC",
		"AIR AMBULANCE", "CARE FLIGHT", "REACH AIR", "PHI AIR MEDICAL", "AIR METHODS",
		"MERCY FLIGHT", "STAT MEDEVAC", "ANGEL FLIGHT", "LIFENET", "LIFESTAR",
		"MEDICAL CENTER", "HOSPITAL", "EMS", "AMBULANCE",
	},
}

var defaultPoliceKeywords = keywordConfig{
	ModelPatterns: []string{
		"AS350", "EC120", "BELL 206", "BELL 407", "OH-58", "MD500", "MD520", "MD600",
		"H125", "A119",
	},
	Keywords: []string{
		"POLICE", "SHERIFF", "STATE PATROL", "HIGHWAY PATROL", "PUBLIC SAFETY",
		"LAW ENFORCEMENT", "DEPARTMENT OF PUBLIC SAFETY", "CONSTABLE", "MARSHAL",
		"DEPT OF PUBLIC SAFETY", "COUNTY SHERIFF", "CITY POLICE",
	},
}

// csvField is a FAA registry column accessor: the column's canonical
// header name, tolerant of the trailing padding FAA publishes its CSVs
// with (e.g. "STATUS CODE                    ").
type csvField struct {
	name string
	idx  int
}

// loadMasterRows reads the FAA MASTER.txt registration file (a header
// row followed by comma-separated, trailing-space-padded fields) into
// roster.Row values.
func loadMasterRows(path string) ([]roster.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := indexColumns(header)

	need := func(name string) int {
		idx, ok := col[name]
		if !ok {
			return -1
		}
		return idx
	}

	idxNNumber := need("N-NUMBER")
	idxHex := need("MODE S CODE HEX")
	idxModelCode := need("MFR MDL CODE")
	idxOwnerName := need("NAME")
	idxOwnerCity := need("CITY")
	idxOwnerState := need("STATE")
	idxStatus := need("STATUS CODE")
	idxTypeAircraft := need("TYPE AIRCRAFT")
	idxTypeEngine := need("TYPE ENGINE")
	idxTypeRegistrant := need("TYPE REGISTRANT")

	if idxNNumber < 0 || idxHex < 0 || idxModelCode < 0 {
		return nil, fmt.Errorf("master file missing required columns (N-NUMBER, MODE S CODE HEX, MFR MDL CODE)")
	}

	var rows []roster.Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed master row")
			continue
		}
		rows = append(rows, roster.Row{
			NNumber:        field(record, idxNNumber),
			ModeSHex:       field(record, idxHex),
			ModelCode:      field(record, idxModelCode),
			OwnerName:      field(record, idxOwnerName),
			OwnerCity:      field(record, idxOwnerCity),
			OwnerState:     field(record, idxOwnerState),
			StatusCode:     field(record, idxStatus),
			TypeAircraft:   field(record, idxTypeAircraft),
			TypeEngine:     field(record, idxTypeEngine),
			TypeRegistrant: field(record, idxTypeRegistrant),
		})
	}
	return rows, nil
}

// loadModelLookup reads the FAA ACFTREF.txt aircraft-reference file
// (CODE, MFR, MODEL, ...) into a code->ModelInfo map.
func loadModelLookup(path string) (map[string]roster.ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := indexColumns(header)

	idxCode := col["CODE"]
	idxMfr := col["MFR"]
	idxModel := col["MODEL"]

	lookup := make(map[string]roster.ModelInfo)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed acftref row")
			continue
		}
		code := field(record, idxCode)
		if code == "" {
			continue
		}
		lookup[code] = roster.ModelInfo{
			Manufacturer: field(record, idxMfr),
			Model:        field(record, idxModel),
		}
	}
	return lookup, nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
