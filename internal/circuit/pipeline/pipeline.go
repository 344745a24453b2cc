package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/circuit/l3segments"
	"github.com/banshee-data/circuit.report/internal/circuit/l4corners"
	"github.com/banshee-data/circuit.report/internal/circuit/l5pace"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// Config bundles the per-layer configuration of an analysis run.
type Config struct {
	Geometry        l2geometry.Config
	Segments        l3segments.Config
	Corners         l4corners.Config
	Pace            l5pace.Config
	SegmentMethod   l3segments.Method
	DetectionMethod l4corners.DetectionMethod
	MaxWorkers      int
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	cfg, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		// The built-in method names always parse.
		panic(err)
	}
	return cfg
}

// ConfigFromTuning builds a Config from the tuning document. Unknown
// method names are configuration errors.
func ConfigFromTuning(t *config.TuningConfig) (Config, error) {
	segMethod, err := l3segments.ParseMethod(t.GetSegmentMethod())
	if err != nil {
		return Config{}, err
	}
	detMethod, err := l4corners.ParseDetectionMethod(t.GetDetectionMethod())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Geometry:        l2geometry.ConfigFromTuning(t),
		Segments:        l3segments.ConfigFromTuning(t),
		Corners:         l4corners.ConfigFromTuning(t),
		Pace:            l5pace.ConfigFromTuning(t),
		SegmentMethod:   segMethod,
		DetectionMethod: detMethod,
		MaxWorkers:      t.GetMaxWorkers(),
	}, nil
}

// Lap is one lap to analyse.
type Lap struct {
	ID    string
	Trace *l1trace.LapTrace
}

// CornerTime compares the time spent between a corner's entry and exit
// with the optimal time over the same window.
type CornerTime struct {
	Number  int      `json:"number"`
	Actual  *float64 `json:"actual,omitempty"` // s, nil without a time channel
	Optimal float64  `json:"optimal"`          // s
	Loss    *float64 `json:"loss,omitempty"`   // Actual - Optimal
}

// LapAnalysis is the full result for one lap.
type LapAnalysis struct {
	LapID        string                 `json:"lap_id"`
	Profile      *l2geometry.Profile    `json:"profile"`
	Segmentation *l3segments.Result     `json:"segmentation"`
	Corners      []l4corners.Corner     `json:"corners"`
	Optimal      *l5pace.OptimalProfile `json:"optimal"`
	CornerTimes  []CornerTime           `json:"corner_times"`
	LapTime      *float64               `json:"lap_time,omitempty"`  // s, from the trace
	TimeLoss     *float64               `json:"time_loss,omitempty"` // LapTime - optimal lap time
}

// Analyzer runs the layer stack with a fixed configuration. It holds no
// per-lap state and is safe for concurrent use.
type Analyzer struct {
	Config Config
}

// NewAnalyzer returns an Analyzer for cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{Config: cfg}
}

// AnalyzeLap runs every layer over one lap.
func (a *Analyzer) AnalyzeLap(ctx context.Context, lapID string, trace *l1trace.LapTrace, params l5pace.VehicleParams) (*LapAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := trace.Validate(); err != nil {
		return nil, fmt.Errorf("lap %s: %w", lapID, err)
	}

	profile, err := l2geometry.ExtractCurvature(trace, a.Config.Geometry)
	if err != nil {
		return nil, fmt.Errorf("lap %s: geometry: %w", lapID, err)
	}
	seg, err := l3segments.Run(profile, a.Config.SegmentMethod, a.Config.Segments)
	if err != nil {
		return nil, fmt.Errorf("lap %s: segmentation: %w", lapID, err)
	}
	corners, err := l4corners.Detect(trace, profile, seg, a.Config.DetectionMethod, a.Config.Corners)
	if err != nil {
		return nil, fmt.Errorf("lap %s: corners: %w", lapID, err)
	}
	optimal, err := l5pace.Solve(profile, params, a.Config.Pace)
	if err != nil {
		return nil, fmt.Errorf("lap %s: pace: %w", lapID, err)
	}

	res := &LapAnalysis{
		LapID:        lapID,
		Profile:      profile,
		Segmentation: seg,
		Corners:      corners,
		Optimal:      optimal,
		CornerTimes:  cornerTimes(trace, optimal, corners),
	}
	if lt, ok := trace.LapTime(); ok {
		loss := lt - optimal.LapTime
		res.LapTime = &lt
		res.TimeLoss = &loss
	}
	return res, nil
}

// AnalyzeLaps analyses laps concurrently on at most MaxWorkers goroutines.
// Results are in the order of laps. The first failure cancels the laps not
// yet started and is returned.
func (a *Analyzer) AnalyzeLaps(ctx context.Context, laps []Lap, params l5pace.VehicleParams) ([]*LapAnalysis, error) {
	if len(laps) == 0 {
		return nil, errors.New("no laps to analyse")
	}
	workers := a.Config.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	results := make([]*LapAnalysis, len(laps))
	for i, lap := range laps {
		g.Go(func() error {
			res, err := a.AnalyzeLap(gctx, lap.ID, lap.Trace, params)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitoring.Logf("analysed %d laps with %d workers", len(laps), workers)
	return results, nil
}

func cornerTimes(trace *l1trace.LapTrace, optimal *l5pace.OptimalProfile, corners []l4corners.Corner) []CornerTime {
	out := make([]CornerTime, 0, len(corners))
	for _, c := range corners {
		ct := CornerTime{
			Number:  c.Number,
			Optimal: optimal.TimeBetween(c.Entry, c.Exit),
		}
		if trace.HasTime() {
			actual := trace.Time[trace.IndexAtDistance(c.Exit)] - trace.Time[trace.IndexAtDistance(c.Entry)]
			loss := actual - ct.Optimal
			ct.Actual, ct.Loss = &actual, &loss
		}
		out = append(out, ct)
	}
	return out
}
