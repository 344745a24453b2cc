package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/circuit.report/internal/timeutil"
)

func openTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC))
	db, err := OpenDBWithClock(filepath.Join(t.TempDir(), "circuit.db"), clock)
	if err != nil {
		t.Fatalf("OpenDBWithClock failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func TestPragmasApplied(t *testing.T) {
	db, _ := openTestDB(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"}, // NORMAL
		{"temp_store", "2"},  // MEMORY
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", tt.pragma, err)
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %s, want %s", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrations(t *testing.T) {
	db, _ := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("MigrateVersion() = %d, dirty=%v; want 1, false", version, dirty)
	}

	// Already at latest.
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp should be a no-op, got %v", err)
	}

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'analysis_runs'`).Scan(&n); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if n != 0 {
		t.Error("analysis_runs should be dropped after MigrateDown")
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp after down failed: %v", err)
	}
	if version, _, _ := db.MigrateVersion(); version != 1 {
		t.Errorf("version after re-up = %d, want 1", version)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	first.Close()

	second, err := OpenDB(path)
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	defer second.Close()
	if version, _, err := second.MigrateVersion(); err != nil || version != 1 {
		t.Errorf("MigrateVersion() = %d, %v; want 1, nil", version, err)
	}
}

func TestRetryOnBusy(t *testing.T) {
	locked := errors.New("database is locked (5) (SQLITE_BUSY)")

	tests := []struct {
		name       string
		failures   int
		err        error
		wantErr    bool
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{"succeeds first time", 0, locked, false, 1, nil},
		{"recovers after two busy", 2, locked, false, 3, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}},
		{"gives up", 100, locked, true, busyRetries + 1, []time.Duration{
			50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond,
			200 * time.Millisecond, 250 * time.Millisecond,
		}},
		{"other errors are not retried", 100, errors.New("no such table: lap_results"), true, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(time.Unix(0, 0))
			db := &DB{clock: clock}

			calls := 0
			err := db.retryOnBusy(func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("retryOnBusy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			sleeps := clock.Sleeps()
			if len(sleeps) != len(tt.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", sleeps, tt.wantSleeps)
			}
			for i := range sleeps {
				if sleeps[i] != tt.wantSleeps[i] {
					t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], tt.wantSleeps[i])
				}
			}
		})
	}
}
