// Package prometheus renders engine counters in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps a [goOTP.Engine]; mount [PrometheusExporter.Handler]
// on the scrape path. Counters are named otp_*_total and the verification
// latency histogram is otp_verify_latency_seconds. Nothing is registered in a
// global registry.
package prometheus
