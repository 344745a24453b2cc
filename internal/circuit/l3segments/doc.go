// Package l3segments owns Layer 3 (Segments) of the circuit data model.
//
// Responsibilities: partitioning a curvature profile into an ordered,
// gapless cover of straight and corner segments. Three interchangeable
// changepoint searches (PELT, curvature scale space and adaptive peak
// expansion) feed one shared classifier that types, merges and groups the
// spans into corner complexes.
// Key types: Segment, Result, Method.
//
// Dependency rule: L3 may depend on L1-L2.
// No SQL/database code is allowed in this package.
package l3segments
