package l4corners

import (
	"fmt"
	"math"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/circuit/l3segments"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// region is a half-open sample range [lo, hi).
type region struct {
	lo, hi int
}

// Detect dispatches to the selected detection method. profile and seg are
// only used by the geometry-aware path.
func Detect(trace *l1trace.LapTrace, profile *l2geometry.Profile, seg *l3segments.Result, method DetectionMethod, cfg Config) ([]Corner, error) {
	switch method {
	case MethodHeadingRate:
		return DetectHeadingRate(trace, cfg)
	case MethodGeometry:
		return DetectFromSegments(trace, profile, seg, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// HeadingRate returns the wrap-safe heading rate (deg/m, compass sense so
// right turns are positive) smoothed by a centred rolling mean over
// window metres.
func HeadingRate(trace *l1trace.LapTrace, window float64) ([]float64, error) {
	if err := trace.Require(l1trace.ChannelHeading); err != nil {
		return nil, err
	}
	n := trace.Len()
	step := trace.Step()
	rate := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		if hi == lo {
			continue
		}
		d := l2geometry.WrapDegrees(trace.Heading[hi] - trace.Heading[lo])
		rate[i] = d / (float64(hi-lo) * step)
	}
	samples := 1
	if step > 0 {
		samples = int(math.Round(window / step))
	}
	return rollingMean(rate, samples), nil
}

// rollingMean is a centred moving average over k samples; the window
// shrinks at the edges.
func rollingMean(x []float64, k int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if k <= 1 {
		copy(out, x)
		return out
	}
	prefix := make([]float64, n+1)
	for i, v := range x {
		prefix[i+1] = prefix[i] + v
	}
	before := k / 2
	after := k - before - 1
	for i := 0; i < n; i++ {
		lo := i - before
		hi := i + after + 1
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}

// DetectHeadingRate finds corners where the smoothed heading rate exceeds
// the threshold. Regions closer than MergeGap merge; regions shorter than
// MinCornerLength are dropped. A lap without corners yields an empty,
// non-nil slice.
func DetectHeadingRate(trace *l1trace.LapTrace, cfg Config) ([]Corner, error) {
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
	signal := absAll(rate)

	var regions []region
	start := -1
	for i, v := range signal {
		in := v > cfg.HeadingRateThreshold
		switch {
		case in && start < 0:
			start = i
		case !in && start >= 0:
			regions = append(regions, region{start, i})
			start = -1
		}
	}
	if start >= 0 {
		regions = append(regions, region{start, len(signal)})
	}

	d := trace.Distance
	n := trace.Len()
	exitIdx := func(r region) int {
		if r.hi > n-1 {
			return n - 1
		}
		return r.hi
	}

	var merged []region
	for _, r := range regions {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if d[r.lo]-d[exitIdx(*last)] < cfg.MergeGap {
				last.hi = r.hi
				continue
			}
		}
		merged = append(merged, r)
	}

	corners := make([]Corner, 0, len(merged))
	for _, r := range merged {
		entry, exit := d[r.lo], d[exitIdx(r)]
		if exit-entry < cfg.MinCornerLength {
			continue
		}
		corners = append(corners, Corner{
			Number: len(corners) + 1,
			Entry:  entry,
			Exit:   exit,
			Method: MethodHeadingRate,
		})
	}

	x := &extractor{trace: trace, signal: signal, cfg: cfg}
	x.fill(corners)
	if len(corners) == 0 {
		monitoring.Diagf("heading-rate detection: no corners above %.2f deg/m", cfg.HeadingRateThreshold)
	}
	return corners, nil
}

// DetectFromSegments turns the corner segments of a segmentation into
// numbered corners with KPIs, using |κ| for the geometric apex.
func DetectFromSegments(trace *l1trace.LapTrace, profile *l2geometry.Profile, seg *l3segments.Result, cfg Config) ([]Corner, error) {
	if profile == nil || seg == nil {
		return nil, ErrMissingGeometry
	}
	if err := trace.Validate(); err != nil {
		return nil, err
	}
	if err := trace.Require(l1trace.ChannelSpeed, l1trace.ChannelLonAccel); err != nil {
		return nil, err
	}
	if profile.Len() != trace.Len() {
		return nil, fmt.Errorf("%w: profile has %d samples, trace has %d", ErrMissingGeometry, profile.Len(), trace.Len())
	}

	segs := seg.Corners()
	corners := make([]Corner, 0, len(segs))
	for _, s := range segs {
		peak, mean, dir := s.PeakCurvature, s.MeanCurvature, s.Direction
		corners = append(corners, Corner{
			Number:        len(corners) + 1,
			Entry:         s.Entry,
			Exit:          s.Exit,
			PeakCurvature: &peak,
			MeanCurvature: &mean,
			Direction:     &dir,
			Method:        MethodGeometry,
		})
	}

	x := &extractor{trace: trace, signal: profile.AbsCurvature, cfg: cfg}
	x.fill(corners)
	return corners, nil
}

func absAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}
