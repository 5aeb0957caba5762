// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the exporters.
//
// The Prometheus and OpenTelemetry exporters both read these tables, so a
// rename here changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import seccore or any exporter package.
//   - Perform I/O.
package internaldefs
