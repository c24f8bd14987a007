package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

// HistoryRepository persists and queries aircraft position history.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository returns a repository bound to db.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// SaveSnapshot upserts one history row per state vector in states, all
// stamped with the same ingestion timestamp ts (the tick's wall-clock
// start time in Unix seconds, spec §4.9 step 4). Re-saving an identical (hex24, ts) row
// is idempotent: the row is replaced with the same field values.
func (r *HistoryRepository) SaveSnapshot(ctx context.Context, ts int64, states []fleet.StateVector) error {
	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO aircraft_history (
			hex24, timestamp, lat, lon, altitude, velocity, on_ground,
			vertical_rate, callsign, heading, squawk, last_contact
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hex24, timestamp) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			altitude = excluded.altitude,
			velocity = excluded.velocity,
			on_ground = excluded.on_ground,
			vertical_rate = excluded.vertical_rate,
			callsign = excluded.callsign,
			heading = excluded.heading,
			squawk = excluded.squawk,
			last_contact = excluded.last_contact
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range states {
		altitude, hasAltitude := s.Altitude()

		onGround := 0
		if s.OnGround {
			onGround = 1
		}

		_, err := stmt.ExecContext(ctx,
			s.Hex24, ts,
			nullFloat(s.HasPosition, s.Latitude),
			nullFloat(s.HasPosition, s.Longitude),
			nullFloat(hasAltitude, altitude),
			nullFloat(s.HasVelocity, s.Velocity),
			onGround,
			nullFloat(s.HasVerticalRate, s.VerticalRate),
			nullString(s.HasCallsign, s.Callsign),
			nullFloat(s.HasHeading, s.Heading),
			nullString(s.HasSquawk, s.Squawk),
			nullInt(s.LastContact != 0, s.LastContact),
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot for %s: %w", s.Hex24, err)
		}
	}
	return nil
}

// History returns hex24's history newest-first, limited to limit rows
// and optionally bounded to timestamps >= since.
func (r *HistoryRepository) History(ctx context.Context, hex24 string, since int64, hasSince bool, limit int) ([]fleet.HistoryRecord, error) {
	var rows *sql.Rows
	var err error
	if hasSince {
		rows, err = r.db.QueryContext(ctx, `
			SELECT hex24, timestamp, lat, lon, altitude, velocity, on_ground,
			       vertical_rate, callsign, heading, squawk, last_contact
			FROM aircraft_history
			WHERE hex24 = ? AND timestamp >= ?
			ORDER BY timestamp DESC
			LIMIT ?`, hex24, since, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT hex24, timestamp, lat, lon, altitude, velocity, on_ground,
			       vertical_rate, callsign, heading, squawk, last_contact
			FROM aircraft_history
			WHERE hex24 = ?
			ORDER BY timestamp DESC
			LIMIT ?`, hex24, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", hex24, err)
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

// LatestAll returns the latest history record for every hex24, optionally
// restricted to hex24s whose latest record has timestamp >= since.
func (r *HistoryRepository) LatestAll(ctx context.Context, since int64, hasSince bool) (map[string]fleet.HistoryRecord, error) {
	query := `
		SELECT h.hex24, h.timestamp, h.lat, h.lon, h.altitude, h.velocity,
		       h.on_ground, h.vertical_rate, h.callsign, h.heading, h.squawk,
		       h.last_contact
		FROM aircraft_history h
		INNER JOIN (
			SELECT hex24, MAX(timestamp) AS max_ts
			FROM aircraft_history
			GROUP BY hex24
		) latest ON latest.hex24 = h.hex24 AND latest.max_ts = h.timestamp`

	var rows *sql.Rows
	var err error
	if hasSince {
		rows, err = r.db.QueryContext(ctx, query+" WHERE h.timestamp >= ?", since)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest states: %w", err)
	}
	defer rows.Close()

	records, err := scanHistoryRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]fleet.HistoryRecord, len(records))
	for _, rec := range records {
		out[rec.Hex24] = rec
	}
	return out, nil
}

func scanHistoryRows(rows *sql.Rows) ([]fleet.HistoryRecord, error) {
	var out []fleet.HistoryRecord
	for rows.Next() {
		var (
			rec          fleet.HistoryRecord
			lat, lon     sql.NullFloat64
			altitude     sql.NullFloat64
			velocity     sql.NullFloat64
			onGround     int
			verticalRate sql.NullFloat64
			callsign     sql.NullString
			heading      sql.NullFloat64
			squawk       sql.NullString
			lastContact  sql.NullInt64
		)
		if err := rows.Scan(&rec.Hex24, &rec.Timestamp, &lat, &lon, &altitude,
			&velocity, &onGround, &verticalRate, &callsign, &heading, &squawk,
			&lastContact); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Lat = lat.Float64
		rec.Lon = lon.Float64
		rec.Altitude, rec.HasAltitude = altitude.Float64, altitude.Valid
		rec.Velocity, rec.HasVelocity = velocity.Float64, velocity.Valid
		rec.OnGround = onGround != 0
		rec.VerticalRate, rec.HasVerticalRate = verticalRate.Float64, verticalRate.Valid
		rec.Callsign = callsign.String
		rec.Heading, rec.HasHeading = heading.Float64, heading.Valid
		rec.Squawk, rec.HasSquawk = squawk.String, squawk.Valid
		rec.LastContact = lastContact.Int64
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullFloat(valid bool, v float64) interface{} {
	if !valid {
		return nil
	}
	return v
}

func nullString(valid bool, v string) interface{} {
	if !valid {
		return nil
	}
	return v
}

func nullInt(valid bool, v int64) interface{} {
	if !valid {
		return nil
	}
	return v
}
