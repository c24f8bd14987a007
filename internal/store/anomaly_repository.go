package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

// AnomalyRepository persists the anomaly log. Rows are append-only;
// acknowledged defaults to false and nothing in this repository ever
// sets it, per spec §3 (acknowledgement, if any, is an external concern).
type AnomalyRepository struct {
	db *DB
}

// NewAnomalyRepository returns a repository bound to db.
func NewAnomalyRepository(db *DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// LogAnomaly appends one anomaly record. hex24 is empty for fleet-level
// anomalies (multiple_launch) and is stored as SQL NULL.
func (r *AnomalyRepository) LogAnomaly(ctx context.Context, rec fleet.Record) error {
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO anomaly_log (timestamp, hex24, kind, severity, details_json, acknowledged)
		VALUES (?, ?, ?, ?, ?, 0)`,
		rec.Timestamp, nullString(rec.Hex24 != "", rec.Hex24), string(rec.Kind),
		string(rec.Severity), string(detailsJSON))
	if err != nil {
		return fmt.Errorf("failed to log anomaly: %w", err)
	}
	return nil
}

// RecentAnomalies returns anomaly_log rows newest-first, bounded to
// limit. Intended for diagnostics and tests, not the tick loop itself.
func (r *AnomalyRepository) RecentAnomalies(ctx context.Context, limit int) ([]fleet.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, hex24, kind, severity, details_json, acknowledged
		FROM anomaly_log
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly log: %w", err)
	}
	defer rows.Close()

	var out []fleet.Record
	for rows.Next() {
		var (
			rec          fleet.Record
			hex24        sql.NullString
			kind, sev    string
			detailsJSON  string
			acknowledged int
		)
		if err := rows.Scan(&rec.Timestamp, &hex24, &kind, &sev, &detailsJSON, &acknowledged); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly row: %w", err)
		}
		rec.Hex24 = hex24.String
		rec.Kind = fleet.Kind(kind)
		rec.Severity = fleet.Severity(sev)
		rec.Acknowledged = acknowledged != 0
		if err := json.Unmarshal([]byte(detailsJSON), &rec.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomaly details: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
