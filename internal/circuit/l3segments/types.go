package l3segments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/circuit.report/internal/config"
)

// ErrUnknownMethod is returned for an unrecognised segmentation method name.
var ErrUnknownMethod = errors.New("unknown segmentation method")

// SegmentType classifies a stretch of track.
type SegmentType string

const (
	SegmentStraight   SegmentType = "straight"
	SegmentCorner     SegmentType = "corner"
	SegmentTransition SegmentType = "transition" // reserved for consumers; the classifier emits straight or corner
)

// Direction is the turn direction of a segment.
type Direction string

const (
	DirectionLeft     Direction = "left"
	DirectionRight    Direction = "right"
	DirectionStraight Direction = "straight"
)

// Method selects the changepoint search.
type Method string

const (
	MethodPELT Method = "pelt"
	MethodCSS  Method = "css"
	MethodASC  Method = "asc"
)

// Methods lists the supported methods in a stable order.
var Methods = []Method{MethodPELT, MethodCSS, MethodASC}

// ParseMethod resolves a method name (case-insensitive).
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want pelt, css or asc)", ErrUnknownMethod, s)
}

// Segment is one contiguous stretch of track.
type Segment struct {
	Type          SegmentType `json:"type"`
	Entry         float64     `json:"entry"`          // m
	Exit          float64     `json:"exit"`           // m
	PeakCurvature float64     `json:"peak_curvature"` // max |κ| (1/m)
	MeanCurvature float64     `json:"mean_curvature"` // mean |κ| (1/m)
	Direction     Direction   `json:"direction"`
	// Scale is the coarsest smoothing scale (m) at which a boundary inside
	// the segment persisted. Only the CSS method sets it.
	Scale *float64 `json:"scale,omitempty"`
	// ParentComplex groups consecutive same-direction corners. Straights
	// never carry one.
	ParentComplex *int `json:"parent_complex,omitempty"`
}

// Length returns the segment length in metres.
func (s Segment) Length() float64 { return s.Exit - s.Entry }

// Result is the output of one segmentation run.
type Result struct {
	Segments     []Segment `json:"segments"`
	Changepoints []float64 `json:"changepoints"` // raw boundaries from the search (m)
	Method       Method    `json:"method"`
}

// Corners returns the corner segments in track order.
func (r *Result) Corners() []Segment {
	if r == nil {
		return nil
	}
	var out []Segment
	for _, s := range r.Segments {
		if s.Type == SegmentCorner {
			out = append(out, s)
		}
	}
	return out
}

// Config holds segmentation thresholds. Distances are in metres and
// curvatures in 1/m.
type Config struct {
	CornerCurvature  float64 // mean |κ| above this makes a corner
	PeakCurvature    float64 // ASC peak threshold
	MinSegmentLength float64
	MergeGap         float64
	ComplexGap       float64   // max straight between corners of one complex
	Scales           []float64 // CSS Gaussian widths
	VoteTolerance    float64   // CSS candidates closer than this are one vote
	PenaltyScale     float64   // PELT penalty multiplier on 2·ln(n)
	Jump             int       // PELT decimation (samples per block)
}

// DefaultConfig returns the segmentation defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		CornerCurvature:  cfg.GetCornerCurvature(),
		PeakCurvature:    cfg.GetPeakCurvature(),
		MinSegmentLength: cfg.GetMinSegmentLength(),
		MergeGap:         cfg.GetSegmentMergeGap(),
		ComplexGap:       cfg.GetComplexGap(),
		Scales:           cfg.GetCSSScales(),
		VoteTolerance:    cfg.GetCSSVoteTolerance(),
		PenaltyScale:     cfg.GetPELTPenaltyScale(),
		Jump:             cfg.GetPELTJump(),
	}
}
