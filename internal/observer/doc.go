// Package observer turns raw performance entries into per-metric observations.
//
// A Source delivers batches of entries per entry type. Feed is the in-process
// Source used by the collector and tests; Browser (js/wasm only) wraps the
// page's PerformanceObserver. Registry subscribes once per metric, applies
// the entry selection rules, and forwards results to a Handler:
//
//   - LCP: last entry of each batch; later batches supersede earlier ones
//   - FID: first first-input entry, processingStart - startTime
//   - INP: processingEnd - startTime of every interaction entry
//   - CLS: layout shifts passed through raw for session windowing
//   - FCP: first paint entry named first-contentful-paint
//   - TTFB: one read of the navigation entry, responseStart - requestStart
//
// A subscription that fails is logged and skipped.
package observer
