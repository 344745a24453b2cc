package l4corners

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/banshee-data/circuit.report/internal/circuit/l3segments"
	"github.com/banshee-data/circuit.report/internal/config"
)

var (
	// ErrUnknownMethod is returned for an unrecognised detection method.
	ErrUnknownMethod = errors.New("unknown corner detection method")
	// ErrMissingGeometry is returned when geometry-aware detection is asked
	// for without a curvature profile and segmentation.
	ErrMissingGeometry = errors.New("geometry detection needs a curvature profile and segmentation")
)

// ApexType classifies where the speed apex falls relative to the
// geometric apex.
type ApexType string

const (
	ApexEarly ApexType = "early"
	ApexMid   ApexType = "mid"
	ApexLate  ApexType = "late"
)

// DetectionMethod selects how corner boundaries are found.
type DetectionMethod string

const (
	MethodHeadingRate DetectionMethod = "heading_rate"
	MethodGeometry    DetectionMethod = "geometry"
)

// ParseDetectionMethod resolves a detection method name (case-insensitive).
func ParseDetectionMethod(s string) (DetectionMethod, error) {
	switch m := DetectionMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodHeadingRate, MethodGeometry:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want heading_rate or geometry)", ErrUnknownMethod, s)
}

// Corner is a detected corner with its KPIs. Distances are in metres along
// the lap; optional values are nil when absent.
type Corner struct {
	Number         int      `json:"number"`
	Entry          float64  `json:"entry"`
	Exit           float64  `json:"exit"`
	Apex           float64  `json:"apex"`           // minimum speed
	GeometricApex  float64  `json:"geometric_apex"` // maximum curvature or heading rate
	MinSpeed       float64  `json:"min_speed"`      // m/s
	BrakePoint     *float64 `json:"brake_point,omitempty"`
	PeakBrakeG     *float64 `json:"peak_brake_g,omitempty"`
	ThrottleCommit *float64 `json:"throttle_commit,omitempty"`
	ApexType       ApexType `json:"apex_type"`

	BrakeCoord *orb.Point `json:"brake_coord,omitempty"`
	ApexCoord  *orb.Point `json:"apex_coord,omitempty"`

	// Geometry fields, set by the geometry-aware path.
	PeakCurvature *float64              `json:"peak_curvature,omitempty"`
	MeanCurvature *float64              `json:"mean_curvature,omitempty"`
	Direction     *l3segments.Direction `json:"direction,omitempty"`

	Method DetectionMethod `json:"method"`
}

// Length returns the corner window length in metres.
func (c Corner) Length() float64 { return c.Exit - c.Entry }

// Config holds detection and KPI parameters. Distances are in metres and
// accelerations in G.
type Config struct {
	HeadingRateThreshold float64 // deg/m
	SmoothingWindow      float64
	MinCornerLength      float64
	MergeGap             float64

	BrakeLookback      float64
	BrakeApexFraction  float64 // share of entry→apex searched after entry
	BrakeThresholdG    float64 // negative
	ThrottleThresholdG float64
	ThrottleSustain    float64
	ApexMidTolerance   float64 // fraction of window length
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		HeadingRateThreshold: cfg.GetHeadingRateThreshold(),
		SmoothingWindow:      cfg.GetHeadingSmoothingWindow(),
		MinCornerLength:      cfg.GetMinCornerLength(),
		MergeGap:             cfg.GetCornerMergeGap(),
		BrakeLookback:        cfg.GetBrakeLookback(),
		BrakeApexFraction:    cfg.GetBrakeApexFraction(),
		BrakeThresholdG:      cfg.GetBrakeThresholdG(),
		ThrottleThresholdG:   cfg.GetThrottleThresholdG(),
		ThrottleSustain:      cfg.GetThrottleSustain(),
		ApexMidTolerance:     cfg.GetApexMidTolerance(),
	}
}
