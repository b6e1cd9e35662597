// Package prometheus exposes authcore engine counters as a prometheus.Collector.
//
// [NewPrometheusExporter] wraps an [authcore.Engine]. Register the exporter on
// a registry of your own, or mount [PrometheusExporter.Handler]. Counter names
// are prefixed authcore_ and end in _total; login and refresh latency are
// histograms in seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
