// Package receiver implements the beacon ingestion endpoint.
//
// Pages POST batches of PerformanceObserver entries to /api/v1/entries. The
// first beacon of a page view creates its Feed and Engine (through an
// EngineFactory) and stores them; later beacons are delivered to that feed in
// arrival order. A beacon without page_id gets a fresh UUID, returned in the
// response.
package receiver
