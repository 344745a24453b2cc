package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l5pace"
	"github.com/banshee-data/circuit.report/internal/circuit/pipeline"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/version"
)

// created_at is stored as fixed-width text so it sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one stored analysis run. Result is only populated by
// GetRun.
type RunRecord struct {
	RunID           string          `json:"run_id"`
	InputHash       string          `json:"input_hash"`
	LapID           string          `json:"lap_id"`
	SegmentMethod   string          `json:"segment_method"`
	DetectionMethod string          `json:"detection_method"`
	EngineVersion   string          `json:"engine_version"`
	Params          json.RawMessage `json:"params"`
	CreatedAt       time.Time       `json:"created_at"`
	LapTime         *float64        `json:"lap_time,omitempty"`
	OptimalLapTime  float64         `json:"optimal_lap_time"`
	CornerCount     int             `json:"corner_count"`
	Result          json.RawMessage `json:"result,omitempty"`
}

// InputHash is the SHA-256 of the canonical JSON of everything that
// determines an analysis: the trace, the vehicle and the tuning document.
// The engine is deterministic, so equal hashes mean equal results.
func InputHash(trace *l1trace.LapTrace, params l5pace.VehicleParams, tuning *config.TuningConfig) (string, error) {
	payload, err := json.Marshal(struct {
		Trace  *l1trace.LapTrace    `json:"trace"`
		Params l5pace.VehicleParams `json:"params"`
		Tuning *config.TuningConfig `json:"tuning"`
	}{trace, params, tuning.Resolved()})
	if err != nil {
		return "", fmt.Errorf("hashing inputs: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// SaveAnalysis stores one lap analysis under hash and returns its run ID.
func (db *DB) SaveAnalysis(hash string, params l5pace.VehicleParams, cfg pipeline.Config, res *pipeline.LapAnalysis) (string, error) {
	if res == nil || res.Optimal == nil {
		return "", errors.New("save analysis: incomplete result")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding vehicle params: %w", err)
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encoding analysis %s: %w", res.LapID, err)
	}

	runID := uuid.NewString()
	createdAt := db.clock.Now().UTC().Format(timestampLayout)
	err = db.retryOnBusy(func() error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO analysis_runs (
				run_id, input_hash, lap_id, segment_method, detection_method,
				engine_version, params_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, hash, res.LapID, string(cfg.SegmentMethod), string(cfg.DetectionMethod),
			version.Version, string(paramsJSON), createdAt,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO lap_results (run_id, lap_time, optimal_lap_time, corner_count, result_json)
			VALUES (?, ?, ?, ?, ?)`,
			runID, nullFloat(res.LapTime), res.Optimal.LapTime, len(res.Corners), string(resultJSON),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("saving analysis %s: %w", res.LapID, err)
	}
	return runID, nil
}

// FindByHash returns the most recent stored analysis for hash, or
// ErrNotFound.
func (db *DB) FindByHash(hash string) (*pipeline.LapAnalysis, string, error) {
	var runID, resultJSON string
	err := db.QueryRow(`
		SELECT r.run_id, l.result_json
		FROM analysis_runs r
		JOIN lap_results l ON l.run_id = r.run_id
		WHERE r.input_hash = ?
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT 1`, hash).Scan(&runID, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up hash %s: %w", hash, err)
	}

	var res pipeline.LapAnalysis
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, "", fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return &res, runID, nil
}

const runColumns = `
	r.run_id, r.input_hash, r.lap_id, r.segment_method, r.detection_method,
	r.engine_version, r.params_json, r.created_at,
	l.lap_time, l.optimal_lap_time, l.corner_count`

// ListRuns returns up to limit runs, newest first, without their results.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+runColumns+`
		FROM analysis_runs r
		JOIN lap_results l ON l.run_id = r.run_id
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its stored result, or ErrNotFound.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	row := db.QueryRow(`
		SELECT `+runColumns+`, l.result_json
		FROM analysis_runs r
		JOIN lap_results l ON l.run_id = r.run_id
		WHERE r.run_id = ?`, runID)
	rec, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// DeleteRun removes a run and its result.
func (db *DB) DeleteRun(runID string) error {
	var affected int64
	err := db.retryOnBusy(func() error {
		res, err := db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner, withResult bool) (*RunRecord, error) {
	var (
		rec       RunRecord
		params    string
		createdAt string
		lapTime   sql.NullFloat64
		result    string
	)
	dest := []any{
		&rec.RunID, &rec.InputHash, &rec.LapID, &rec.SegmentMethod, &rec.DetectionMethod,
		&rec.EngineVersion, &params, &createdAt,
		&lapTime, &rec.OptimalLapTime, &rec.CornerCount,
	}
	if withResult {
		dest = append(dest, &result)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	t, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", rec.RunID, createdAt, err)
	}
	rec.CreatedAt = t
	rec.Params = json.RawMessage(params)
	if lapTime.Valid {
		v := lapTime.Float64
		rec.LapTime = &v
	}
	if withResult {
		rec.Result = json.RawMessage(result)
	}
	return &rec, nil
}
