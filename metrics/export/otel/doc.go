// Package otel provides OpenTelemetry metric exporter bindings for tokenforge
// counters, the validate latency histogram, and cache statistics.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// engine metric and Int64ObservableGauge per histogram bucket and cache
// statistic. A single callback reads [tokenforge.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
