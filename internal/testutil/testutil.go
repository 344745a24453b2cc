// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic lap traces (straights, circles, ovals,
// S-bends) so the circuit layers test against the same geometry.
package testutil

import "math"

// InteriorRange returns the [lo, hi) index range covering the central
// fraction of n samples, used to skip spline boundary effects.
func InteriorRange(n int, fraction float64) (lo, hi int) {
	margin := int(math.Round(float64(n) * (1 - fraction) / 2))
	return margin, n - margin
}
