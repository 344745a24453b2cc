package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.CornerCurvature == nil || *cfg.CornerCurvature != 0.004 {
		t.Errorf("Expected CornerCurvature 0.004, got %v", cfg.CornerCurvature)
	}
	if cfg.SegmentMethod == nil || *cfg.SegmentMethod != "asc" {
		t.Errorf("Expected SegmentMethod 'asc', got %v", cfg.SegmentMethod)
	}
	if cfg.OpenCircuit == nil || *cfg.OpenCircuit != false {
		t.Errorf("Expected OpenCircuit false, got %v", cfg.OpenCircuit)
	}
	if !reflect.DeepEqual(cfg.CSSScales, []float64{5, 10, 20, 50, 100}) {
		t.Errorf("Expected default CSS scales, got %v", cfg.CSSScales)
	}

	if cfg.GetBrakeApexFraction() != 0.4 {
		t.Errorf("GetBrakeApexFraction() = %f, want 0.4", cfg.GetBrakeApexFraction())
	}
	if cfg.GetTransitionThreshold() != 0.5 {
		t.Errorf("GetTransitionThreshold() = %f, want 0.5", cfg.GetTransitionThreshold())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig().Validate() = %v", err)
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if !reflect.DeepEqual(cfg, DefaultTuningConfig()) {
		t.Errorf("%s drifted from the built-in defaults", DefaultConfigPath)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "corner_curvature": 0.005,
  "segment_method": "pelt",
  "css_scales": [10, 40],
  "open_circuit": true,
  "pelt_jump": 3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetCornerCurvature(); got != 0.005 {
		t.Errorf("GetCornerCurvature() = %f, want 0.005", got)
	}
	if got := cfg.GetSegmentMethod(); got != "pelt" {
		t.Errorf("GetSegmentMethod() = %q, want pelt", got)
	}
	if got := cfg.GetCSSScales(); !reflect.DeepEqual(got, []float64{10, 40}) {
		t.Errorf("GetCSSScales() = %v", got)
	}
	if !cfg.GetOpenCircuit() {
		t.Error("GetOpenCircuit() = false, want true")
	}
	if got := cfg.GetPELTJump(); got != 3 {
		t.Errorf("GetPELTJump() = %d, want 3", got)
	}

	// Unset fields keep their defaults.
	if got := cfg.GetThrottleSustain(); got != 10.0 {
		t.Errorf("GetThrottleSustain() = %f, want default 10", got)
	}
	if got := cfg.GetMinSpeed(); got != 3.0 {
		t.Errorf("GetMinSpeed() = %f, want default 3", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigExtension(t *testing.T) {
	_, err := LoadTuningConfig("tuning.yaml")
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	cases := map[string]string{
		"bad_json.json":  `{"corner_curvature": "invalid"`,
		"bad_value.json": `{"brake_threshold_g": 0.3}`,
	}
	for name, body := range cases {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write test config: %v", err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"valid config", DefaultTuningConfig(), false},
		{"empty config is valid", &TuningConfig{}, false},
		{"zero smoothing factor", &TuningConfig{SmoothingFactor: ptrFloat64(0)}, true},
		{"negative filter window", &TuningConfig{CurvatureFilterWindow: ptrInt(-1)}, true},
		{"negative min segment", &TuningConfig{MinSegmentLength: ptrFloat64(-5)}, true},
		{"peak below corner", &TuningConfig{CornerCurvature: ptrFloat64(0.01), PeakCurvature: ptrFloat64(0.005)}, true},
		{"zero css scale", &TuningConfig{CSSScales: []float64{5, 0}}, true},
		{"zero pelt jump", &TuningConfig{PELTJump: ptrInt(0)}, true},
		{"brake fraction above one", &TuningConfig{BrakeApexFraction: ptrFloat64(1.5)}, true},
		{"positive brake threshold", &TuningConfig{BrakeThresholdG: ptrFloat64(0.2)}, true},
		{"negative throttle threshold", &TuningConfig{ThrottleThresholdG: ptrFloat64(-0.1)}, true},
		{"wide apex tolerance", &TuningConfig{ApexMidTolerance: ptrFloat64(0.6)}, true},
		{"friction exponent below one", &TuningConfig{FrictionExponent: ptrFloat64(0.5)}, true},
		{"zero workers", &TuningConfig{MaxWorkers: ptrInt(0)}, true},
		{"blank method", &TuningConfig{SegmentMethod: ptrString("  ")}, true},
		{"blank detection", &TuningConfig{DetectionMethod: ptrString("")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetCSSScalesReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{CSSScales: []float64{5, 10}}
	got := cfg.GetCSSScales()
	got[0] = 99
	if cfg.CSSScales[0] != 5 {
		t.Error("GetCSSScales() must not alias the config slice")
	}
}

func TestResolved(t *testing.T) {
	var nilCfg *TuningConfig
	if !reflect.DeepEqual(nilCfg.Resolved(), DefaultTuningConfig()) {
		t.Error("nil config should resolve to the defaults")
	}

	window := 40.0
	partial := &TuningConfig{HeadingSmoothingWindow: &window}
	got := partial.Resolved()
	if got.GetHeadingSmoothingWindow() != 40 {
		t.Errorf("HeadingSmoothingWindow = %v, want 40", got.GetHeadingSmoothingWindow())
	}
	if got.MinSpeed == nil || *got.MinSpeed != DefaultTuningConfig().GetMinSpeed() {
		t.Error("unset MinSpeed should resolve to the default")
	}

	explicit := DefaultTuningConfig()
	if !reflect.DeepEqual(explicit.Resolved(), EmptyTuningConfig().Resolved()) {
		t.Error("explicit defaults and empty config should resolve equal")
	}
}
