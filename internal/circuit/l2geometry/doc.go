// Package l2geometry owns Layer 2 (Geometry) of the circuit data model.
//
// Responsibilities: turning a LapTrace into a curvature Profile. The
// primary path fits cubic smoothing splines to the projected X(s) and Y(s)
// and differentiates them analytically; the fallback path differentiates
// unwrapped heading when position is absent.
// Key types: Profile, SmoothingSpline.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
// No SQL/database code is allowed in this package.
package l2geometry
