// Package reporter dispatches metric updates, fire-and-forget.
//
// Report(name, value) does, in order:
//   - log the metric at debug level when EngineConfig.Debug is set
//   - track an Event with the rounded value on the analytics sink, if any
//   - POST {metric, value, url, timestamp} as JSON to the reporting endpoint
//     on its own goroutine, if one is configured
//
// Sinks: PromSink (Prometheus registry served at /metrics) and OTelSink
// (OpenTelemetry meter). Multi fans out to several.
//
// Reporting failures are logged and dropped. There is no retry, no queue and
// no timeout on the POST.
package reporter
