package l2geometry

import "math"

// Unwrap removes 2π jumps from a sequence of angles (radians) so that
// consecutive samples never differ by more than π.
func Unwrap(angles []float64) []float64 {
	out := make([]float64, len(angles))
	if len(angles) == 0 {
		return out
	}
	out[0] = angles[0]
	for i := 1; i < len(angles); i++ {
		d := angles[i] - angles[i-1]
		d -= 2 * math.Pi * math.Round(d/(2*math.Pi))
		out[i] = out[i-1] + d
	}
	return out
}

// Gradient differentiates v sampled every step using central differences
// in the interior and one-sided differences at the ends.
func Gradient(v []float64, step float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	if n < 2 || step <= 0 {
		return out
	}
	out[0] = (v[1] - v[0]) / step
	out[n-1] = (v[n-1] - v[n-2]) / step
	for i := 1; i < n-1; i++ {
		out[i] = (v[i+1] - v[i-1]) / (2 * step)
	}
	return out
}

// WrapDegrees maps a heading difference in degrees onto [-180, 180).
func WrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
