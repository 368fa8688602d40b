// Package prometheus renders tokenforge metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [tokenforge.Engine] and exposes an
// [http.Handler] that renders every engine counter, the validate latency
// histogram, and the shared cache's statistics. Counter names are prefixed
// tokenforge_*_total; the single histogram is
// tokenforge_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
