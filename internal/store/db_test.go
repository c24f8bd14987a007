package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hollis-aero/fleetwatch/pkg/fleet"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor_state.db")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"aircraft_history", "anomaly_log"}
	for _, tbl := range tables {
		var name string
		err := db.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, tbl).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing after Open(): %v", tbl, err)
		}
	}
}

func TestCleanup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	hr := NewHistoryRepository(db)

	now := time.Now().Unix()
	old := now - int64(40*24*time.Hour/time.Second)

	if err := hr.SaveSnapshot(ctx, old, []fleet.StateVector{{Hex24: "A00001"}}); err != nil {
		t.Fatalf("SaveSnapshot(old) error = %v", err)
	}
	if err := hr.SaveSnapshot(ctx, now, []fleet.StateVector{{Hex24: "A00001"}}); err != nil {
		t.Fatalf("SaveSnapshot(now) error = %v", err)
	}

	deleted, err := db.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted = %d, want 1", deleted)
	}

	records, err := hr.History(ctx, "A00001", 0, false, 20)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 || records[0].Timestamp != now {
		t.Errorf("History() after cleanup = %+v, want single record at %d", records, now)
	}
}
