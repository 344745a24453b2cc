// Package pipeline runs the circuit layers end to end for one or more laps.
//
// Responsibilities: wiring L1 traces through geometry extraction (L2),
// segmentation (L3), corner detection (L4) and the pace solver (L5);
// fanning laps out across a bounded worker pool with results kept in
// input order; and comparing a lap against a reference lap's corners.
// Key types: Analyzer, LapAnalysis, Comparison.
//
// Dependency rule: pipeline may depend on every layer. The layers never
// import pipeline.
package pipeline
