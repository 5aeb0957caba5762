// Package prometheus exposes seccore metrics as a Prometheus collector.
//
// [PrometheusExporter] implements prometheus.Collector; register it on any
// registry, or mount [PrometheusExporter.Handler], which serves it from a
// private one. Counter names are prefixed seccore_ and end in _total; the
// single histogram is seccore_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
