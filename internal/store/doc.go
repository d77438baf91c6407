// Package store holds the live page views of the collector in memory.
//
// Pages are keyed by page id and carry their engine and beacon feed. Pages
// that receive no beacon within the TTL are evicted by Run; eviction, Delete
// and shutdown all close the page's engine.
package store
