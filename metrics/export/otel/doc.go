// Package otel publishes engine counters through an OpenTelemetry Meter.
//
// One observable counter is registered per engine counter and one gauge per
// latency bucket; a single callback reads [goOTP.Engine.MetricsSnapshot] on
// each collection. The caller owns the MeterProvider.
package otel
