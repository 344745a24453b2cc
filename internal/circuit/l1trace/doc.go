// Package l1trace owns Layer 1 (Trace) of the circuit data model.
//
// Responsibilities: the LapTrace input record (one lap resampled onto a
// uniform distance grid), channel validation, local-tangent-plane
// projection of GPS positions, and CSV ingest.
// Key types: LapTrace.
//
// Dependency rule: L1 depends on no other circuit layer.
// No SQL/database code is allowed in this package.
package l1trace
