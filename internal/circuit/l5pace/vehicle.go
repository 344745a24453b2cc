package l5pace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/circuit.report/internal/config"
)

// ErrInvalidParams is returned for vehicle parameters outside their
// physical range.
var ErrInvalidParams = errors.New("invalid vehicle parameters")

// VehicleParams describes the grip envelope of a car. Accelerations are in
// G and speeds in m/s.
type VehicleParams struct {
	Mu          float64 `json:"mu"`            // tyre friction coefficient
	MaxAccelG   float64 `json:"max_accel_g"`   // traction limit on a straight
	MaxDecelG   float64 `json:"max_decel_g"`   // braking limit on a straight
	MaxLateralG float64 `json:"max_lateral_g"` // cornering limit for the friction circle
	// FrictionExponent shapes the friction circle: 2 is an ellipse, larger
	// values square it off.
	FrictionExponent float64 `json:"friction_exponent"`
	// AeroGripCoefficient adds AeroGripCoefficient*v^2 G of lateral grip.
	AeroGripCoefficient float64 `json:"aero_grip_coefficient"`
	// DragCoefficient costs DragCoefficient*v^2/g G of longitudinal
	// acceleration (units 1/m).
	DragCoefficient float64 `json:"drag_coefficient"`
	TopSpeed        float64 `json:"top_speed"`
}

// DefaultVehicleParams returns a road-tyre baseline.
func DefaultVehicleParams() VehicleParams {
	return VehicleParams{
		Mu:               1.0,
		MaxAccelG:        0.5,
		MaxDecelG:        1.0,
		MaxLateralG:      1.0,
		FrictionExponent: config.EmptyTuningConfig().GetFrictionExponent(),
		TopSpeed:         80,
	}
}

// Validate checks that every parameter is finite and in range.
func (p VehicleParams) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
		min  float64
		open bool // true when min itself is excluded
	}{
		{"mu", p.Mu, 0, true},
		{"max_accel_g", p.MaxAccelG, 0, true},
		{"max_decel_g", p.MaxDecelG, 0, true},
		{"max_lateral_g", p.MaxLateralG, 0, true},
		{"friction_exponent", p.FrictionExponent, 1, false},
		{"aero_grip_coefficient", p.AeroGripCoefficient, 0, false},
		{"drag_coefficient", p.DragCoefficient, 0, false},
		{"top_speed", p.TopSpeed, 0, true},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParams, f.name)
		}
		if f.v < f.min || (f.open && f.v == f.min) {
			op := ">="
			if f.open {
				op = ">"
			}
			return fmt.Errorf("%w: %s must be %s %g, got %g", ErrInvalidParams, f.name, op, f.min, f.v)
		}
	}
	return nil
}

// ApplyTuning returns p with the friction exponent replaced when the
// tuning document sets one explicitly.
func (p VehicleParams) ApplyTuning(cfg *config.TuningConfig) VehicleParams {
	if cfg != nil && cfg.FrictionExponent != nil {
		p.FrictionExponent = *cfg.FrictionExponent
	}
	return p
}

// LoadVehicleParams reads vehicle parameters from a JSON file. Fields
// missing from the file keep their DefaultVehicleParams value.
func LoadVehicleParams(path string) (VehicleParams, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return VehicleParams{}, fmt.Errorf("vehicle file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return VehicleParams{}, fmt.Errorf("failed to stat vehicle file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return VehicleParams{}, fmt.Errorf("vehicle file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return VehicleParams{}, fmt.Errorf("failed to read vehicle file: %w", err)
	}

	p := DefaultVehicleParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return VehicleParams{}, fmt.Errorf("failed to parse vehicle JSON: %w", err)
	}
	if err := p.Validate(); err != nil {
		return VehicleParams{}, err
	}
	return p, nil
}
