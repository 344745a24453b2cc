package l2geometry

import (
	"fmt"
	"math"

	"github.com/pconstantinou/savitzkygolay"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// ProfileSource identifies how a curvature profile was derived.
type ProfileSource string

const (
	SourceSpline  ProfileSource = "spline"
	SourceHeading ProfileSource = "heading"
)

const (
	// denominatorEpsilon guards (x'^2+y'^2)^1.5 against stationary samples.
	denominatorEpsilon = 1e-9

	filterOrder     = 3
	minFilterWindow = 5
)

// Config holds geometry extraction parameters.
type Config struct {
	// SmoothingFactor scales the spline residual target s = factor * n * step.
	SmoothingFactor float64
	// FilterWindow is the Savitzky-Golay post-filter window in samples.
	// Zero disables the filter.
	FilterWindow int
}

// DefaultConfig returns the geometry defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SmoothingFactor: cfg.GetSmoothingFactor(),
		FilterWindow:    cfg.GetCurvatureFilterWindow(),
	}
}

// Profile is the curvature profile of one lap, indexed by the trace's
// distance grid. Curvature is positive for left turns.
type Profile struct {
	Distance     []float64     `json:"distance"`
	Curvature    []float64     `json:"curvature"`     // signed (1/m)
	AbsCurvature []float64     `json:"abs_curvature"` // |curvature|
	Heading      []float64     `json:"heading"`       // unwrapped, radians CCW from east
	X            []float64     `json:"x"`             // smoothed local east (m)
	Y            []float64     `json:"y"`             // smoothed local north (m)
	Source       ProfileSource `json:"source"`
}

// Len returns the number of samples.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Distance)
}

// Step returns the mean distance spacing.
func (p *Profile) Step() float64 {
	n := p.Len()
	if n < 2 {
		return 0
	}
	return (p.Distance[n-1] - p.Distance[0]) / float64(n-1)
}

// ExtractCurvature derives the curvature profile of a lap. Position is
// preferred; heading is the fallback. A trace with neither fails with
// l1trace.ErrMissingChannel.
func ExtractCurvature(trace *l1trace.LapTrace, cfg Config) (*Profile, error) {
	if err := trace.Validate(); err != nil {
		return nil, err
	}

	var (
		p   *Profile
		err error
	)
	switch {
	case trace.HasPosition():
		p, err = splineProfile(trace, cfg)
	case trace.HasHeading():
		p, err = headingProfile(trace)
	default:
		return nil, fmt.Errorf("%w: curvature needs %s/%s or %s", l1trace.ErrMissingChannel,
			l1trace.ChannelLat, l1trace.ChannelLon, l1trace.ChannelHeading)
	}
	if err != nil {
		return nil, err
	}

	if cfg.FilterWindow > 0 {
		filtered, err := smoothCurvature(p.Distance, p.Curvature, cfg.FilterWindow)
		if err != nil {
			return nil, err
		}
		p.Curvature = filtered
	}
	p.AbsCurvature = make([]float64, len(p.Curvature))
	for i, k := range p.Curvature {
		p.AbsCurvature[i] = math.Abs(k)
	}
	return p, nil
}

func splineProfile(trace *l1trace.LapTrace, cfg Config) (*Profile, error) {
	x, y, err := trace.ProjectLocal()
	if err != nil {
		return nil, err
	}
	n := trace.Len()
	step := trace.Step()
	factor := cfg.SmoothingFactor
	if factor < 0 {
		factor = 0
	}
	s := factor * float64(n) * step

	sx, err := FitSmoothingSpline(x, step, s)
	if err != nil {
		return nil, fmt.Errorf("failed to fit X(s): %w", err)
	}
	sy, err := FitSmoothingSpline(y, step, s)
	if err != nil {
		return nil, fmt.Errorf("failed to fit Y(s): %w", err)
	}
	dx, ddx := sx.Derivatives()
	dy, ddy := sy.Derivatives()

	curv := make([]float64, n)
	heading := make([]float64, n)
	for i := 0; i < n; i++ {
		curv[i] = signedCurvature(dx[i], dy[i], ddx[i], ddy[i])
		heading[i] = math.Atan2(dy[i], dx[i])
	}

	return &Profile{
		Distance:  copyOf(trace.Distance),
		Curvature: curv,
		Heading:   Unwrap(heading),
		X:         sx.Values(),
		Y:         sy.Values(),
		Source:    SourceSpline,
	}, nil
}

// signedCurvature evaluates `(dx*ddy - ddx*dy) / (dx^2 + dy^2)^1.5`, returning
// zero where the denominator vanishes.
func signedCurvature(dx, dy, ddx, ddy float64) float64 {
	den := math.Pow(dx*dx+dy*dy, 1.5)
	if den < denominatorEpsilon || math.IsNaN(den) {
		return 0
	}
	return (dx*ddy - ddx*dy) / den
}

func headingProfile(trace *l1trace.LapTrace) (*Profile, error) {
	n := trace.Len()
	step := trace.Step()

	// Compass degrees (clockwise from north) to radians counter-clockwise
	// from east so that left turns are positive.
	psi := make([]float64, n)
	for i, h := range trace.Heading {
		psi[i] = math.Pi/2 - h*math.Pi/180
	}
	psi = Unwrap(psi)
	curv := Gradient(psi, step)

	x := make([]float64, n)
	y := make([]float64, n)
	for i := 1; i < n; i++ {
		mid := 0.5 * (psi[i-1] + psi[i])
		x[i] = x[i-1] + step*math.Cos(mid)
		y[i] = y[i-1] + step*math.Sin(mid)
	}

	return &Profile{
		Distance:  copyOf(trace.Distance),
		Curvature: curv,
		Heading:   psi,
		X:         x,
		Y:         y,
		Source:    SourceHeading,
	}, nil
}

// smoothCurvature applies an order-3 Savitzky-Golay filter. The window is
// clamped to an odd length between 5 and the profile length; profiles too
// short for the filter are returned unchanged.
func smoothCurvature(distance, curv []float64, window int) ([]float64, error) {
	n := len(curv)
	w := ClampFilterWindow(window, n)
	if w == 0 {
		monitoring.Diagf("curvature filter skipped: %d samples is below the minimum window of %d", n, minFilterWindow)
		return copyOf(curv), nil
	}
	if w != window {
		monitoring.Diagf("curvature filter window clamped from %d to %d samples", window, w)
	}
	filter, err := savitzkygolay.NewFilter(w, 0, filterOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to build curvature filter (window %d): %w", w, err)
	}
	out, err := filter.Process(curv, distance)
	if err != nil {
		return nil, fmt.Errorf("failed to filter curvature: %w", err)
	}
	return out, nil
}

// ClampFilterWindow returns the nearest valid odd filter window for a
// signal of n samples, or 0 when n is too short for any window.
func ClampFilterWindow(window, n int) int {
	if n < minFilterWindow {
		return 0
	}
	w := window
	if w%2 == 0 {
		w++
	}
	if w < minFilterWindow {
		w = minFilterWindow
	}
	if w > n {
		w = n
		if w%2 == 0 {
			w--
		}
	}
	return w
}

func copyOf(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
