package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l5pace"
	"github.com/banshee-data/circuit.report/internal/circuit/pipeline"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/db"
	"github.com/banshee-data/circuit.report/internal/fsutil"
	"github.com/banshee-data/circuit.report/internal/report"
	"github.com/banshee-data/circuit.report/internal/timeutil"
	"github.com/banshee-data/circuit.report/internal/units"
	"github.com/banshee-data/circuit.report/internal/version"
)

type options struct {
	TracePaths  []string
	VehiclePath string
	TuningPath  string
	Method      string
	Detect      string
	JSONPath    string
	PlotsDir    string
	HTMLPath    string
	DBPath      string
	List        int
	Units       string
	OpenCircuit bool
	Workers     int
}

type runner struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock
	out   io.Writer
}

func newRunner(out io.Writer) *runner {
	return &runner{fs: fsutil.OSFileSystem{}, clock: timeutil.RealClock{}, out: out}
}

// lapResult is one lap's analysis and where it came from.
type lapResult struct {
	RunID    string                `json:"run_id,omitempty"`
	Cached   bool                  `json:"cached"`
	Analysis *pipeline.LapAnalysis `json:"analysis"`
}

type summary struct {
	EngineVersion string                 `json:"engine_version"`
	Units         string                 `json:"units"`
	Vehicle       l5pace.VehicleParams   `json:"vehicle"`
	Laps          []lapResult            `json:"laps"`
	Comparisons   []*pipeline.Comparison `json:"comparisons,omitempty"`
}

func (r *runner) run(ctx context.Context, opts options) error {
	speedUnits, err := units.Parse(opts.Units)
	if err != nil {
		return err
	}

	if opts.List > 0 {
		return r.listRuns(opts.DBPath, opts.List)
	}
	if len(opts.TracePaths) == 0 {
		return errors.New("-trace is required")
	}

	tuning, err := loadTuning(opts)
	if err != nil {
		return err
	}
	cfg, err := pipeline.ConfigFromTuning(tuning)
	if err != nil {
		return err
	}
	params := l5pace.DefaultVehicleParams()
	if opts.VehiclePath != "" {
		if params, err = l5pace.LoadVehicleParams(opts.VehiclePath); err != nil {
			return err
		}
	}
	params = params.ApplyTuning(tuning)

	laps, err := r.loadLaps(opts.TracePaths)
	if err != nil {
		return err
	}

	start := r.clock.Now()
	results, err := r.analyze(ctx, opts.DBPath, laps, params, tuning, cfg)
	if err != nil {
		return err
	}
	log.Printf("analysed %d laps in %v (%s/%s)", len(laps), r.clock.Since(start), cfg.SegmentMethod, cfg.DetectionMethod)

	sum := summary{EngineVersion: version.Version, Units: speedUnits, Vehicle: params, Laps: results}
	analyzer := pipeline.NewAnalyzer(cfg)
	for i := 1; i < len(laps); i++ {
		comp, err := analyzer.CompareLap(results[0].Analysis, laps[i].ID, laps[i].Trace)
		if err != nil {
			return err
		}
		sum.Comparisons = append(sum.Comparisons, comp)
	}

	r.printSummary(sum)
	return r.writeOutputs(opts, sum, laps)
}

func loadTuning(opts options) (*config.TuningConfig, error) {
	tuning := config.EmptyTuningConfig()
	if opts.TuningPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(opts.TuningPath); err != nil {
			return nil, err
		}
	}
	if opts.Method != "" {
		m := opts.Method
		tuning.SegmentMethod = &m
	}
	if opts.Detect != "" {
		d := opts.Detect
		tuning.DetectionMethod = &d
	}
	if opts.OpenCircuit {
		open := true
		tuning.OpenCircuit = &open
	}
	if opts.Workers > 0 {
		w := opts.Workers
		tuning.MaxWorkers = &w
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return tuning, nil
}

// loadLaps reads each CSV; the lap ID is the file name without extension.
func (r *runner) loadLaps(paths []string) ([]pipeline.Lap, error) {
	laps := make([]pipeline.Lap, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		data, err := r.fs.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading trace: %w", err)
		}
		tr, err := l1trace.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		id := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if seen[id] {
			return nil, fmt.Errorf("duplicate lap id %q from %s", id, p)
		}
		seen[id] = true
		laps = append(laps, pipeline.Lap{ID: id, Trace: tr})
	}
	return laps, nil
}

// analyze runs the pipeline on every lap not already in the result store
// and saves the new analyses. Without a store every lap is analysed.
func (r *runner) analyze(ctx context.Context, dbPath string, laps []pipeline.Lap, params l5pace.VehicleParams, tuning *config.TuningConfig, cfg pipeline.Config) ([]lapResult, error) {
	analyzer := pipeline.NewAnalyzer(cfg)
	if dbPath == "" {
		analyses, err := analyzer.AnalyzeLaps(ctx, laps, params)
		if err != nil {
			return nil, err
		}
		results := make([]lapResult, len(analyses))
		for i, a := range analyses {
			results[i] = lapResult{Analysis: a}
		}
		return results, nil
	}

	store, err := db.OpenDBWithClock(dbPath, r.clock)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	results := make([]lapResult, len(laps))
	hashes := make([]string, len(laps))
	var pending []pipeline.Lap
	var pendingIdx []int
	for i, lap := range laps {
		h, err := db.InputHash(lap.Trace, params, tuning)
		if err != nil {
			return nil, fmt.Errorf("lap %s: %w", lap.ID, err)
		}
		hashes[i] = h
		res, runID, err := store.FindByHash(h)
		switch {
		case err == nil:
			res.LapID = lap.ID
			results[i] = lapResult{RunID: runID, Cached: true, Analysis: res}
			log.Printf("lap %s: reusing stored run %s", lap.ID, runID)
		case errors.Is(err, db.ErrNotFound):
			pending = append(pending, lap)
			pendingIdx = append(pendingIdx, i)
		default:
			return nil, err
		}
	}

	if len(pending) == 0 {
		return results, nil
	}
	analyses, err := analyzer.AnalyzeLaps(ctx, pending, params)
	if err != nil {
		return nil, err
	}
	for j, a := range analyses {
		i := pendingIdx[j]
		runID, err := store.SaveAnalysis(hashes[i], params, cfg, a)
		if err != nil {
			return nil, err
		}
		results[i] = lapResult{RunID: runID, Analysis: a}
	}
	return results, nil
}

func (r *runner) printSummary(sum summary) {
	label := units.Label(sum.Units)
	for _, lr := range sum.Laps {
		a := lr.Analysis
		line := fmt.Sprintf("lap %s: %d corners, optimal %.3fs", a.LapID, len(a.Corners), a.Optimal.LapTime)
		if a.LapTime != nil && a.TimeLoss != nil {
			line += fmt.Sprintf(", actual %.3fs (%+.3fs)", *a.LapTime, *a.TimeLoss)
		}
		if lr.Cached {
			line += " [cached]"
		}
		fmt.Fprintln(r.out, line)

		for _, c := range a.Corners {
			fmt.Fprintf(r.out, "  T%-2d %6.0f-%-6.0fm  apex %6.0fm (%s)  min %6.1f %s",
				c.Number, c.Entry, c.Exit, c.Apex, c.ApexType, units.ConvertSpeed(c.MinSpeed, sum.Units), label)
			if c.BrakePoint != nil {
				fmt.Fprintf(r.out, "  brake %6.0fm", *c.BrakePoint)
			}
			fmt.Fprintln(r.out)
		}
	}
	for _, comp := range sum.Comparisons {
		fmt.Fprintf(r.out, "%s vs %s: mean min-speed delta %+.2f %s\n",
			comp.LapID, comp.ReferenceID, units.ConvertSpeed(comp.MeanMinSpeedDelta, sum.Units), label)
	}
}

func (r *runner) writeOutputs(opts options, sum summary, laps []pipeline.Lap) error {
	if opts.JSONPath != "" {
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		if err := r.fs.WriteFile(opts.JSONPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", opts.JSONPath, err)
		}
		log.Printf("wrote %s", opts.JSONPath)
	}
	if opts.PlotsDir == "" && opts.HTMLPath == "" {
		return nil
	}

	reportLaps := make([]report.Lap, len(laps))
	for i, lap := range laps {
		reportLaps[i] = report.Lap{Analysis: sum.Laps[i].Analysis, Trace: lap.Trace}
	}
	w := &report.Writer{FS: r.fs, Units: sum.Units}
	if opts.PlotsDir != "" {
		written, err := w.WritePlots(reportLaps, opts.PlotsDir)
		if err != nil {
			return err
		}
		log.Printf("wrote %d plots to %s", len(written), opts.PlotsDir)
	}
	if opts.HTMLPath != "" {
		if err := w.WriteHTML(reportLaps, opts.HTMLPath); err != nil {
			return err
		}
		log.Printf("wrote %s", opts.HTMLPath)
	}
	return nil
}

func (r *runner) listRuns(dbPath string, limit int) error {
	if dbPath == "" {
		return errors.New("-list requires -db")
	}
	store, err := db.OpenDBWithClock(dbPath, r.clock)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		actual := "-"
		if run.LapTime != nil {
			actual = fmt.Sprintf("%.3fs", *run.LapTime)
		}
		fmt.Fprintf(r.out, "%s  %s  %-12s %s/%s  corners=%d optimal=%.3fs actual=%s\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.RunID, run.LapID,
			run.SegmentMethod, run.DetectionMethod, run.CornerCount, run.OptimalLapTime, actual)
	}
	log.Printf("%d stored runs", len(runs))
	return nil
}
