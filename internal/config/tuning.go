package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the analysis engine.
// Every field is optional; the Get* accessors return the built-in default
// for fields left unset, so partial files are safe.
type TuningConfig struct {
	// Geometry params
	SmoothingFactor       *float64 `json:"smoothing_factor,omitempty"`        // spline residual target per metre of track
	CurvatureFilterWindow *int     `json:"curvature_filter_window,omitempty"` // samples; 0 disables the post-filter

	// Segmentation params
	SegmentMethod    *string   `json:"segment_method,omitempty"` // pelt, css or asc
	CornerCurvature  *float64  `json:"corner_curvature,omitempty"`
	PeakCurvature    *float64  `json:"peak_curvature,omitempty"`
	MinSegmentLength *float64  `json:"min_segment_length,omitempty"`
	SegmentMergeGap  *float64  `json:"segment_merge_gap,omitempty"`
	ComplexGap       *float64  `json:"complex_gap,omitempty"`
	CSSScales        []float64 `json:"css_scales,omitempty"`
	CSSVoteTolerance *float64  `json:"css_vote_tolerance,omitempty"`
	PELTPenaltyScale *float64  `json:"pelt_penalty_scale,omitempty"`
	PELTJump         *int      `json:"pelt_jump,omitempty"`

	// Corner detection params
	DetectionMethod        *string  `json:"detection_method,omitempty"` // heading_rate or geometry
	HeadingRateThreshold   *float64 `json:"heading_rate_threshold,omitempty"`
	HeadingSmoothingWindow *float64 `json:"heading_smoothing_window,omitempty"`
	MinCornerLength        *float64 `json:"min_corner_length,omitempty"`
	CornerMergeGap         *float64 `json:"corner_merge_gap,omitempty"`

	// KPI params
	BrakeLookback      *float64 `json:"brake_lookback,omitempty"`
	BrakeApexFraction  *float64 `json:"brake_apex_fraction,omitempty"`
	BrakeThresholdG    *float64 `json:"brake_threshold_g,omitempty"`
	ThrottleThresholdG *float64 `json:"throttle_threshold_g,omitempty"`
	ThrottleSustain    *float64 `json:"throttle_sustain,omitempty"`
	ApexMidTolerance   *float64 `json:"apex_mid_tolerance,omitempty"`

	// Solver params
	MinSpeed            *float64 `json:"min_speed,omitempty"`
	FrictionExponent    *float64 `json:"friction_exponent,omitempty"`
	TransitionThreshold *float64 `json:"transition_threshold,omitempty"`
	OpenCircuit         *bool    `json:"open_circuit,omitempty"`

	// Pipeline params
	MaxWorkers *int `json:"max_workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	return EmptyTuningConfig().Resolved()
}

// Resolved returns a copy of c with every unset field filled from the
// built-in defaults. Two configs that behave the same resolve equal.
func (c *TuningConfig) Resolved() *TuningConfig {
	e := c
	if e == nil {
		e = EmptyTuningConfig()
	}
	return &TuningConfig{
		SmoothingFactor:        ptrFloat64(e.GetSmoothingFactor()),
		CurvatureFilterWindow:  ptrInt(e.GetCurvatureFilterWindow()),
		SegmentMethod:          ptrString(e.GetSegmentMethod()),
		CornerCurvature:        ptrFloat64(e.GetCornerCurvature()),
		PeakCurvature:          ptrFloat64(e.GetPeakCurvature()),
		MinSegmentLength:       ptrFloat64(e.GetMinSegmentLength()),
		SegmentMergeGap:        ptrFloat64(e.GetSegmentMergeGap()),
		ComplexGap:             ptrFloat64(e.GetComplexGap()),
		CSSScales:              e.GetCSSScales(),
		CSSVoteTolerance:       ptrFloat64(e.GetCSSVoteTolerance()),
		PELTPenaltyScale:       ptrFloat64(e.GetPELTPenaltyScale()),
		PELTJump:               ptrInt(e.GetPELTJump()),
		DetectionMethod:        ptrString(e.GetDetectionMethod()),
		HeadingRateThreshold:   ptrFloat64(e.GetHeadingRateThreshold()),
		HeadingSmoothingWindow: ptrFloat64(e.GetHeadingSmoothingWindow()),
		MinCornerLength:        ptrFloat64(e.GetMinCornerLength()),
		CornerMergeGap:         ptrFloat64(e.GetCornerMergeGap()),
		BrakeLookback:          ptrFloat64(e.GetBrakeLookback()),
		BrakeApexFraction:      ptrFloat64(e.GetBrakeApexFraction()),
		BrakeThresholdG:        ptrFloat64(e.GetBrakeThresholdG()),
		ThrottleThresholdG:     ptrFloat64(e.GetThrottleThresholdG()),
		ThrottleSustain:        ptrFloat64(e.GetThrottleSustain()),
		ApexMidTolerance:       ptrFloat64(e.GetApexMidTolerance()),
		MinSpeed:               ptrFloat64(e.GetMinSpeed()),
		FrictionExponent:       ptrFloat64(e.GetFrictionExponent()),
		TransitionThreshold:    ptrFloat64(e.GetTransitionThreshold()),
		OpenCircuit:            ptrBool(e.GetOpenCircuit()),
		MaxWorkers:             ptrInt(e.GetMaxWorkers()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/circuit/lN/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"smoothing_factor", c.SmoothingFactor},
		{"corner_curvature", c.CornerCurvature},
		{"peak_curvature", c.PeakCurvature},
		{"heading_rate_threshold", c.HeadingRateThreshold},
		{"heading_smoothing_window", c.HeadingSmoothingWindow},
		{"pelt_penalty_scale", c.PELTPenaltyScale},
		{"min_speed", c.MinSpeed},
		{"transition_threshold", c.TransitionThreshold},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"min_segment_length", c.MinSegmentLength},
		{"segment_merge_gap", c.SegmentMergeGap},
		{"complex_gap", c.ComplexGap},
		{"css_vote_tolerance", c.CSSVoteTolerance},
		{"min_corner_length", c.MinCornerLength},
		{"corner_merge_gap", c.CornerMergeGap},
		{"brake_lookback", c.BrakeLookback},
		{"throttle_sustain", c.ThrottleSustain},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.v)
		}
	}

	if c.CurvatureFilterWindow != nil && *c.CurvatureFilterWindow < 0 {
		return fmt.Errorf("curvature_filter_window must be non-negative, got %d", *c.CurvatureFilterWindow)
	}
	if c.PELTJump != nil && *c.PELTJump < 1 {
		return fmt.Errorf("pelt_jump must be at least 1, got %d", *c.PELTJump)
	}
	if c.MaxWorkers != nil && *c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", *c.MaxWorkers)
	}
	if c.PeakCurvature != nil && c.CornerCurvature != nil && *c.PeakCurvature < *c.CornerCurvature {
		return fmt.Errorf("peak_curvature (%f) must not be below corner_curvature (%f)", *c.PeakCurvature, *c.CornerCurvature)
	}
	for _, s := range c.CSSScales {
		if s <= 0 {
			return fmt.Errorf("css_scales entries must be positive, got %f", s)
		}
	}
	if c.BrakeApexFraction != nil && (*c.BrakeApexFraction < 0 || *c.BrakeApexFraction > 1) {
		return fmt.Errorf("brake_apex_fraction must be between 0 and 1, got %f", *c.BrakeApexFraction)
	}
	if c.ApexMidTolerance != nil && (*c.ApexMidTolerance < 0 || *c.ApexMidTolerance > 0.5) {
		return fmt.Errorf("apex_mid_tolerance must be between 0 and 0.5, got %f", *c.ApexMidTolerance)
	}
	if c.BrakeThresholdG != nil && *c.BrakeThresholdG >= 0 {
		return fmt.Errorf("brake_threshold_g must be negative, got %f", *c.BrakeThresholdG)
	}
	if c.ThrottleThresholdG != nil && *c.ThrottleThresholdG <= 0 {
		return fmt.Errorf("throttle_threshold_g must be positive, got %f", *c.ThrottleThresholdG)
	}
	if c.FrictionExponent != nil && *c.FrictionExponent < 1 {
		return fmt.Errorf("friction_exponent must be at least 1, got %f", *c.FrictionExponent)
	}

	// Method names are checked by the layers that own them; here only the
	// obviously empty value is rejected.
	if c.SegmentMethod != nil && strings.TrimSpace(*c.SegmentMethod) == "" {
		return fmt.Errorf("segment_method must not be empty")
	}
	if c.DetectionMethod != nil && strings.TrimSpace(*c.DetectionMethod) == "" {
		return fmt.Errorf("detection_method must not be empty")
	}

	return nil
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *TuningConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return 1.0
	}
	return *c.SmoothingFactor
}

// GetCurvatureFilterWindow returns the curvature_filter_window value or the default.
func (c *TuningConfig) GetCurvatureFilterWindow() int {
	if c.CurvatureFilterWindow == nil {
		return 0 // default: no post-filter
	}
	return *c.CurvatureFilterWindow
}

// GetSegmentMethod returns the segment_method value or the default.
func (c *TuningConfig) GetSegmentMethod() string {
	if c.SegmentMethod == nil {
		return "asc"
	}
	return *c.SegmentMethod
}

// GetCornerCurvature returns the corner_curvature value (1/m) or the default.
func (c *TuningConfig) GetCornerCurvature() float64 {
	if c.CornerCurvature == nil {
		return 0.004 // 250 m radius
	}
	return *c.CornerCurvature
}

// GetPeakCurvature returns the peak_curvature value (1/m) or the default.
func (c *TuningConfig) GetPeakCurvature() float64 {
	if c.PeakCurvature == nil {
		return 0.008
	}
	return *c.PeakCurvature
}

// GetMinSegmentLength returns the min_segment_length value (m) or the default.
func (c *TuningConfig) GetMinSegmentLength() float64 {
	if c.MinSegmentLength == nil {
		return 15.0
	}
	return *c.MinSegmentLength
}

// GetSegmentMergeGap returns the segment_merge_gap value (m) or the default.
func (c *TuningConfig) GetSegmentMergeGap() float64 {
	if c.SegmentMergeGap == nil {
		return 10.0
	}
	return *c.SegmentMergeGap
}

// GetComplexGap returns the complex_gap value (m) or the default.
func (c *TuningConfig) GetComplexGap() float64 {
	if c.ComplexGap == nil {
		return 50.0
	}
	return *c.ComplexGap
}

// GetCSSScales returns a copy of the css_scales list (m) or the default.
func (c *TuningConfig) GetCSSScales() []float64 {
	if len(c.CSSScales) == 0 {
		return []float64{5, 10, 20, 50, 100}
	}
	out := make([]float64, len(c.CSSScales))
	copy(out, c.CSSScales)
	return out
}

// GetCSSVoteTolerance returns the css_vote_tolerance value (m) or the default.
func (c *TuningConfig) GetCSSVoteTolerance() float64 {
	if c.CSSVoteTolerance == nil {
		return 10.0
	}
	return *c.CSSVoteTolerance
}

// GetPELTPenaltyScale returns the pelt_penalty_scale value or the default.
func (c *TuningConfig) GetPELTPenaltyScale() float64 {
	if c.PELTPenaltyScale == nil {
		return 1.0
	}
	return *c.PELTPenaltyScale
}

// GetPELTJump returns the pelt_jump value (samples) or the default.
func (c *TuningConfig) GetPELTJump() int {
	if c.PELTJump == nil {
		return 5
	}
	return *c.PELTJump
}

// GetDetectionMethod returns the detection_method value or the default.
func (c *TuningConfig) GetDetectionMethod() string {
	if c.DetectionMethod == nil {
		return "heading_rate"
	}
	return *c.DetectionMethod
}

// GetHeadingRateThreshold returns the heading_rate_threshold value (deg/m) or the default.
func (c *TuningConfig) GetHeadingRateThreshold() float64 {
	if c.HeadingRateThreshold == nil {
		return 0.4
	}
	return *c.HeadingRateThreshold
}

// GetHeadingSmoothingWindow returns the heading_smoothing_window value (m) or the default.
func (c *TuningConfig) GetHeadingSmoothingWindow() float64 {
	if c.HeadingSmoothingWindow == nil {
		return 20.0
	}
	return *c.HeadingSmoothingWindow
}

// GetMinCornerLength returns the min_corner_length value (m) or the default.
func (c *TuningConfig) GetMinCornerLength() float64 {
	if c.MinCornerLength == nil {
		return 15.0
	}
	return *c.MinCornerLength
}

// GetCornerMergeGap returns the corner_merge_gap value (m) or the default.
func (c *TuningConfig) GetCornerMergeGap() float64 {
	if c.CornerMergeGap == nil {
		return 30.0
	}
	return *c.CornerMergeGap
}

// GetBrakeLookback returns the brake_lookback value (m) or the default.
func (c *TuningConfig) GetBrakeLookback() float64 {
	if c.BrakeLookback == nil {
		return 150.0
	}
	return *c.BrakeLookback
}

// GetBrakeApexFraction returns the brake_apex_fraction value or the default.
func (c *TuningConfig) GetBrakeApexFraction() float64 {
	if c.BrakeApexFraction == nil {
		return 0.4
	}
	return *c.BrakeApexFraction
}

// GetBrakeThresholdG returns the brake_threshold_g value or the default.
func (c *TuningConfig) GetBrakeThresholdG() float64 {
	if c.BrakeThresholdG == nil {
		return -0.2
	}
	return *c.BrakeThresholdG
}

// GetThrottleThresholdG returns the throttle_threshold_g value or the default.
func (c *TuningConfig) GetThrottleThresholdG() float64 {
	if c.ThrottleThresholdG == nil {
		return 0.1
	}
	return *c.ThrottleThresholdG
}

// GetThrottleSustain returns the throttle_sustain value (m) or the default.
func (c *TuningConfig) GetThrottleSustain() float64 {
	if c.ThrottleSustain == nil {
		return 10.0
	}
	return *c.ThrottleSustain
}

// GetApexMidTolerance returns the apex_mid_tolerance value or the default.
func (c *TuningConfig) GetApexMidTolerance() float64 {
	if c.ApexMidTolerance == nil {
		return 0.1
	}
	return *c.ApexMidTolerance
}

// GetMinSpeed returns the min_speed value (m/s) or the default.
func (c *TuningConfig) GetMinSpeed() float64 {
	if c.MinSpeed == nil {
		return 3.0
	}
	return *c.MinSpeed
}

// GetFrictionExponent returns the friction_exponent value or the default.
func (c *TuningConfig) GetFrictionExponent() float64 {
	if c.FrictionExponent == nil {
		return 2.0 // ellipse
	}
	return *c.FrictionExponent
}

// GetTransitionThreshold returns the transition_threshold value (m/s) or the default.
func (c *TuningConfig) GetTransitionThreshold() float64 {
	if c.TransitionThreshold == nil {
		return 0.5
	}
	return *c.TransitionThreshold
}

// GetOpenCircuit returns the open_circuit value or the default.
func (c *TuningConfig) GetOpenCircuit() bool {
	if c.OpenCircuit == nil {
		return false // closed loop
	}
	return *c.OpenCircuit
}

// GetMaxWorkers returns the max_workers value or the default.
func (c *TuningConfig) GetMaxWorkers() int {
	if c.MaxWorkers == nil {
		return 4
	}
	return *c.MaxWorkers
}
