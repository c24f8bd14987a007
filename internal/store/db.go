// Package store is fleetwatch's embedded state store (component E): an
// append-only aircraft history table and an anomaly log, backed by a
// single modernc.org/sqlite file with no external database server.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a sqlite connection opened against a single file on disk.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if absent) the sqlite database at path and
// applies the schema. A single connection is sufficient: all mutating
// operations are externally serialized by the monitor service (spec §5),
// and sqlite itself serializes writers.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single physical connection avoids SQLITE_BUSY from the driver
	// handing out concurrent connections against one file.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.initSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// initSchema creates the aircraft_history and anomaly_log tables if they
// do not already exist. Safe to call against an existing database.
func (db *DB) initSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Cleanup deletes aircraft_history rows older than retentionDays and
// returns the number of rows removed. anomaly_log is never trimmed
// (spec §4.5).
func (db *DB) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()
	res, err := db.ExecContext(ctx,
		`DELETE FROM aircraft_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}
	return res.RowsAffected()
}
