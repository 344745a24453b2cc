// Package l4corners owns Layer 4 (Corners) of the circuit data model.
//
// Responsibilities: corner boundary detection, either from the
// heading-rate channel or from the L3 segmentation, and per-corner KPI
// extraction (speed apex, geometric apex, apex type, brake point, peak
// braking, throttle commit). KPIs can be re-extracted for another lap
// against a fixed set of reference corner windows.
// Key types: Corner, ApexType, DetectionMethod.
//
// Dependency rule: L4 may depend on L1-L3.
// No SQL/database code is allowed in this package.
package l4corners
