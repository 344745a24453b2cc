// Package db is the sqlite result store. Analyses are cached by a hash of
// their inputs so identical laps are not solved twice.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/circuit.report/internal/timeutil"
)

// ErrNotFound is returned when no stored run matches a lookup.
var ErrNotFound = errors.New("analysis run not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// DB wraps the sqlite handle with the clock used to stamp runs.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// OpenDB opens (creating if needed) the result store at path, applies the
// connection PRAGMAs and brings the schema up to date.
func OpenDB(path string) (*DB, error) {
	return OpenDBWithClock(path, timeutil.RealClock{})
}

// OpenDBWithClock is OpenDB with an explicit clock.
func OpenDBWithClock(path string, clock timeutil.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// PRAGMAs are per connection; keep exactly one.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, clock: clock}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

const (
	busyRetries = 5
	busyBackoff = 50 * time.Millisecond
)

// retryOnBusy runs fn, retrying with linear backoff while sqlite reports
// the database as locked.
func (db *DB) retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		if attempt < busyRetries {
			db.clock.Sleep(time.Duration(attempt+1) * busyBackoff)
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
