// Package compute owns the per-page-view measurement state and the derived
// score.
//
// Engine wires an observer.Registry to the metrics map and the CLS session
// aggregator, and sends every update to a Reporter. Score and Recommendations
// are pure functions over a metrics map:
//
//	good = 100, needs-improvement = 50, poor = 0
//	overall = round(mean over measured metrics)
//
// Recommendations is a static lookup keyed off poor ratings only.
//
// Poll is the polling convenience layer for UI consumers: it pushes a
// Snapshot every interval until the context or the engine is done.
package compute
