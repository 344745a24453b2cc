// Package l5pace owns Layer 5 (Pace) of the circuit data model.
//
// Responsibilities: solving the physics-limited optimal speed trace for a
// curvature profile and a set of vehicle grip parameters. The solver
// builds a cornering ceiling, runs forward (acceleration) and backward
// (braking) passes under a generalised friction circle with optional aero
// grip and drag, wraps closed circuits, and marks brake and throttle
// transitions with hysteresis.
// Key types: VehicleParams, OptimalProfile, Transition.
//
// Dependency rule: L5 may depend on L1-L2 only; it never sees segments or
// corners.
// No SQL/database code is allowed in this package.
package l5pace
