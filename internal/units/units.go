// Package units converts engine speeds (m/s) into display units for the
// CLI and reports.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Parse normalises a unit flag value and rejects unknown units.
func Parse(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return MPS, nil
	}
	if !IsValid(u) {
		return "", fmt.Errorf("unknown speed unit %q (valid: %s)", unit, strings.Join(ValidUnits, ", "))
	}
	return u, nil
}

// ConvertSpeed converts a speed from metres per second to the target
// units. Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ConvertAll converts a speed series, returning a new slice.
func ConvertAll(speedsMPS []float64, targetUnits string) []float64 {
	out := make([]float64, len(speedsMPS))
	for i, v := range speedsMPS {
		out[i] = ConvertSpeed(v, targetUnits)
	}
	return out
}

// Label returns the axis label for a unit.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}
