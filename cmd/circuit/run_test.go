package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l3segments"
	"github.com/banshee-data/circuit.report/internal/circuit/l4corners"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/testutil"
	"github.com/banshee-data/circuit.report/internal/units"
)

func writeOvalCSV(t *testing.T, dir, name string, lateralG float64) string {
	t.Helper()
	opts := testutil.DefaultTraceOptions()
	opts.LateralG = lateralG
	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, opts)

	var buf bytes.Buffer
	require.NoError(t, l1trace.WriteCSV(&buf, tr))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "", *traceFlag)
	assert.Equal(t, "mps", *unitsFlag)
	assert.False(t, *openFlag)
	assert.Zero(t, *workersFlag)
	assert.Zero(t, *listFlag)
}

func TestRun_Outputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := options{
		TracePaths: []string{
			writeOvalCSV(t, dir, "lap1.csv", 1.0),
			writeOvalCSV(t, dir, "lap2.csv", 0.8),
		},
		JSONPath: filepath.Join(dir, "out.json"),
		PlotsDir: filepath.Join(dir, "plots"),
		HTMLPath: filepath.Join(dir, "report.html"),
		Units:    units.KPH,
	}

	var out bytes.Buffer
	require.NoError(t, newRunner(&out).run(context.Background(), opts))

	assert.Contains(t, out.String(), "lap lap1: 2 corners")
	assert.Contains(t, out.String(), "lap2 vs lap1: mean min-speed delta -")
	assert.Contains(t, out.String(), "km/h")

	data, err := os.ReadFile(opts.JSONPath)
	require.NoError(t, err)
	var sum summary
	require.NoError(t, json.Unmarshal(data, &sum))
	require.Len(t, sum.Laps, 2)
	assert.Equal(t, "lap1", sum.Laps[0].Analysis.LapID)
	assert.Equal(t, "lap2", sum.Laps[1].Analysis.LapID)
	assert.False(t, sum.Laps[0].Cached)
	require.Len(t, sum.Comparisons, 1)
	assert.Equal(t, "lap1", sum.Comparisons[0].ReferenceID)
	assert.Equal(t, units.KPH, sum.Units)

	for _, name := range []string{"lap1_speed.png", "lap1_curvature.png", "lap2_speed.png", "lap2_curvature.png"} {
		_, err := os.Stat(filepath.Join(opts.PlotsDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(opts.HTMLPath)
	assert.NoError(t, err)
}

func TestRun_CachesInStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := options{
		TracePaths: []string{writeOvalCSV(t, dir, "lap1.csv", 1.0)},
		DBPath:     filepath.Join(dir, "results.db"),
		JSONPath:   filepath.Join(dir, "first.json"),
	}
	var out bytes.Buffer
	require.NoError(t, newRunner(&out).run(context.Background(), opts))
	assert.NotContains(t, out.String(), "[cached]")

	opts.JSONPath = filepath.Join(dir, "second.json")
	out.Reset()
	require.NoError(t, newRunner(&out).run(context.Background(), opts))
	assert.Contains(t, out.String(), "[cached]")

	read := func(name string) summary {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		var s summary
		require.NoError(t, json.Unmarshal(data, &s))
		return s
	}
	first, second := read("first.json"), read("second.json")
	assert.True(t, second.Laps[0].Cached)
	assert.Equal(t, first.Laps[0].RunID, second.Laps[0].RunID)
	assert.Equal(t, first.Laps[0].Analysis.Optimal.LapTime, second.Laps[0].Analysis.Optimal.LapTime)

	// A different method is a different input.
	opts.Method = "css"
	out.Reset()
	require.NoError(t, newRunner(&out).run(context.Background(), opts))
	assert.NotContains(t, out.String(), "[cached]")

	out.Reset()
	require.NoError(t, newRunner(&out).run(context.Background(), options{DBPath: opts.DBPath, List: 10}))
	assert.Contains(t, out.String(), "lap1")
	assert.Contains(t, out.String(), "css/heading_rate")
	assert.Contains(t, out.String(), "asc/heading_rate")
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lap := writeOvalCSV(t, dir, "lap.csv", 1.0)

	tests := []struct {
		name string
		opts options
		want string
	}{
		{"no trace", options{}, "-trace is required"},
		{"bad units", options{TracePaths: []string{lap}, Units: "knots"}, "unknown speed unit"},
		{"list without db", options{List: 5}, "-list requires -db"},
		{"missing file", options{TracePaths: []string{filepath.Join(dir, "nope.csv")}}, "reading trace"},
		{"duplicate ids", options{TracePaths: []string{lap, lap}}, "duplicate lap id"},
		{"bad method", options{TracePaths: []string{lap}, Method: "wavelet"}, "wavelet"},
		{"missing vehicle", options{TracePaths: []string{lap}, VehiclePath: filepath.Join(dir, "car.json")}, "car.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := newRunner(&bytes.Buffer{}).run(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTuning_Overrides(t *testing.T) {
	t.Parallel()

	tuning, err := loadTuning(options{Method: "pelt", Detect: "geometry", OpenCircuit: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, string(l3segments.MethodPELT), tuning.GetSegmentMethod())
	assert.Equal(t, string(l4corners.MethodGeometry), tuning.GetDetectionMethod())
	assert.True(t, tuning.GetOpenCircuit())
	assert.Equal(t, 2, tuning.GetMaxWorkers())

	defaults, err := loadTuning(options{})
	require.NoError(t, err)
	assert.Equal(t, config.EmptyTuningConfig(), defaults)
}
