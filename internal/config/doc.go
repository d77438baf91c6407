// Package config loads and watches the collector configuration file.
//
// Top-level types:
//   - Config{Engine, Collector, Optimize}: full tree parsed from YAML
//   - EngineConfig: enable_reporting, reporting_endpoint, reporting_auth,
//     enable_optimizations, enable_preloading, enable_lazy_loading, debug,
//     page_url, poll_interval
//   - CollectorConfig: http_port, session_ttl, max_batch_size, analytics,
//     otlp_endpoint, auth, upstream
//   - OptimizeConfig: critical_resources, deferred_stylesheets, eager_images,
//     third_party, reserved_slots, default_aspect_ratio
//
// Load(path) reads the YAML file, applies defaults (reporting and all
// optimizations on, 5s poll, port 8080, 30m session TTL), then validates
// ranges and enums. Secrets are never stored in the file; AuthConfig.Key()
// and Token() resolve them from the environment variables the file names.
//
// Watch(ctx, path, onChange) uses fsnotify to reload on write and re-adds the
// watch after atomic-save editors replace the file.
package config
