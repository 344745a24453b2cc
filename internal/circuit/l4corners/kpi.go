package l4corners

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// extractor fills KPIs for corner windows over one lap. signal is the
// cornering-intensity channel used for the geometric apex.
type extractor struct {
	trace  *l1trace.LapTrace
	signal []float64
	cfg    Config
}

// fill computes KPIs in place. Each corner's brake search is clamped at the
// previous corner's exit.
func (x *extractor) fill(corners []Corner) {
	prevExit := math.Inf(-1)
	for i := range corners {
		x.extract(&corners[i], prevExit)
		prevExit = corners[i].Exit
	}
}

// window returns the half-open index range [lo, hi) covering [entry, exit).
// A window of a single sample is widened to include it.
func (x *extractor) window(entry, exit float64) (int, int) {
	lo := x.trace.IndexAtDistance(entry)
	hi := x.trace.IndexAtDistance(exit)
	if hi <= lo {
		hi = lo + 1
	}
	if n := x.trace.Len(); hi > n {
		hi = n
	}
	return lo, hi
}

func (x *extractor) extract(c *Corner, prevExit float64) {
	t := x.trace
	d := t.Distance
	lo, hi := x.window(c.Entry, c.Exit)

	apexIdx, geoIdx := lo, lo
	for i := lo; i < hi; i++ {
		if t.Speed[i] < t.Speed[apexIdx] {
			apexIdx = i
		}
		if x.signal[i] > x.signal[geoIdx] {
			geoIdx = i
		}
	}
	c.Apex = d[apexIdx]
	c.GeometricApex = d[geoIdx]
	c.MinSpeed = t.Speed[apexIdx]
	c.ApexType = classifyApex(c.Apex, c.GeometricApex, c.Length(), x.cfg.ApexMidTolerance)

	c.BrakePoint, c.PeakBrakeG, c.BrakeCoord = nil, nil, nil
	if idx, peak, ok := x.brake(c.Entry, c.Apex, prevExit); ok {
		bp, pg := d[idx], peak
		c.BrakePoint, c.PeakBrakeG = &bp, &pg
		c.BrakeCoord = coordinate(t, idx)
	}

	c.ThrottleCommit = nil
	if idx, ok := x.throttle(apexIdx, hi); ok {
		tc := d[idx]
		c.ThrottleCommit = &tc
	}
	c.ApexCoord = coordinate(t, apexIdx)
}

// classifyApex compares the speed apex to the geometric apex, normalised
// by the window length.
func classifyApex(apex, geometric, length, tol float64) ApexType {
	if length <= 0 {
		return ApexMid
	}
	offset := (apex - geometric) / length
	switch {
	case math.Abs(offset) <= tol:
		return ApexMid
	case offset < 0:
		return ApexEarly
	default:
		return ApexLate
	}
}

// brake searches [entry-lookback, entry+fraction*(apex-entry)], never
// before prevExit, for the first sample below the braking threshold. The
// peak is the minimum over the whole search window.
func (x *extractor) brake(entry, apex, prevExit float64) (int, float64, bool) {
	t := x.trace
	d := t.Distance
	from := math.Max(entry-x.cfg.BrakeLookback, prevExit)
	to := entry + x.cfg.BrakeApexFraction*(apex-entry)
	if from < d[0] {
		from = d[0]
	}
	if to < from {
		return 0, 0, false
	}

	first := -1
	peak := math.Inf(1)
	for i := t.IndexAtDistance(from); i < t.Len() && d[i] <= to; i++ {
		g := t.LonAccelG[i]
		if g < peak {
			peak = g
		}
		if first < 0 && g < x.cfg.BrakeThresholdG {
			first = i
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	return first, peak, true
}

// throttle returns the start of the first run from the apex that keeps
// longitudinal acceleration above the threshold for ThrottleSustain metres.
// The run must begin before the exit; it may be confirmed after it.
func (x *extractor) throttle(apexIdx, hi int) (int, bool) {
	t := x.trace
	d := t.Distance
	runStart := -1
	for j := apexIdx; j < t.Len(); j++ {
		if t.LonAccelG[j] <= x.cfg.ThrottleThresholdG {
			runStart = -1
			if j >= hi {
				return 0, false
			}
			continue
		}
		if runStart < 0 {
			if j >= hi {
				return 0, false
			}
			runStart = j
		}
		if d[j]-d[runStart] >= x.cfg.ThrottleSustain {
			return runStart, true
		}
	}
	return 0, false
}

func coordinate(t *l1trace.LapTrace, i int) *orb.Point {
	p, ok := t.Coordinate(i)
	if !ok {
		return nil
	}
	return &p
}

// ExtractLapKPIs recomputes KPIs on trace using the windows of a reference
// lap's corners. Numbers and geometry fields are kept from the reference;
// corners whose window runs past the end of trace are skipped. The
// geometric apex uses the lap's own smoothed heading rate.
func ExtractLapKPIs(trace *l1trace.LapTrace, reference []Corner, cfg Config) ([]Corner, error) {
	if err := trace.Validate(); err != nil {
		return nil, err
	}
	if err := trace.Require(l1trace.ChannelHeading, l1trace.ChannelSpeed, l1trace.ChannelLonAccel); err != nil {
		return nil, err
	}
	rate, err := HeadingRate(trace, cfg.SmoothingWindow)
	if err != nil {
		return nil, err
	}
	return reextract(&extractor{trace: trace, signal: absAll(rate), cfg: cfg}, reference), nil
}

// ExtractLapKPIsWithProfile is ExtractLapKPIs with the geometric apex taken
// from the lap's curvature profile.
func ExtractLapKPIsWithProfile(trace *l1trace.LapTrace, profile *l2geometry.Profile, reference []Corner, cfg Config) ([]Corner, error) {
	if profile == nil {
		return nil, ErrMissingGeometry
	}
	if err := trace.Validate(); err != nil {
		return nil, err
	}
	if err := trace.Require(l1trace.ChannelSpeed, l1trace.ChannelLonAccel); err != nil {
		return nil, err
	}
	if profile.Len() != trace.Len() {
		return nil, ErrMissingGeometry
	}
	return reextract(&extractor{trace: trace, signal: profile.AbsCurvature, cfg: cfg}, reference), nil
}

func reextract(x *extractor, reference []Corner) []Corner {
	total := x.trace.TotalDistance()
	out := make([]Corner, 0, len(reference))
	prevExit := math.Inf(-1)
	for _, ref := range reference {
		if ref.Exit > total {
			monitoring.Diagf("corner %d: window ends at %.1f m beyond lap length %.1f m, skipped", ref.Number, ref.Exit, total)
			continue
		}
		c := ref
		x.extract(&c, prevExit)
		out = append(out, c)
		prevExit = ref.Exit
	}
	return out
}
