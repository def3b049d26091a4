// Package metrics provides lock-free counters and a verification latency
// histogram for the OTP engine.
//
// Counters live in cache-line-padded uint64 slots incremented with
// [sync/atomic.AddUint64]. The histogram has 8 fixed buckets (≤1ms … +Inf).
// Neither allocates on the write path.
//
// Export to Prometheus or OpenTelemetry lives in metrics/export and reads
// Snapshot values. This package performs no I/O.
package metrics
