package goOTP

import (
	"time"

	internalmetrics "github.com/MrEthical07/goOTP/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricEnrollment            = internalmetrics.MetricEnrollment
	MetricEnrollmentConfirmed   = internalmetrics.MetricEnrollmentConfirmed
	MetricDisable               = internalmetrics.MetricDisable
	MetricTOTPSuccess           = internalmetrics.MetricTOTPSuccess
	MetricTOTPFailure           = internalmetrics.MetricTOTPFailure
	MetricTOTPReplayRejected    = internalmetrics.MetricTOTPReplayRejected
	MetricBackupCodeUsed        = internalmetrics.MetricBackupCodeUsed
	MetricBackupCodeFailed      = internalmetrics.MetricBackupCodeFailed
	MetricBackupCodeRegenerated = internalmetrics.MetricBackupCodeRegenerated
	MetricAlternateOTPIssued    = internalmetrics.MetricAlternateOTPIssued
	MetricAlternateOTPCooldown  = internalmetrics.MetricAlternateOTPCooldown
	MetricAlternateOTPSuccess   = internalmetrics.MetricAlternateOTPSuccess
	MetricAlternateOTPFailure   = internalmetrics.MetricAlternateOTPFailure
	MetricLockedRejected        = internalmetrics.MetricLockedRejected
	MetricLockoutTriggered      = internalmetrics.MetricLockoutTriggered
	MetricUnlock                = internalmetrics.MetricUnlock
	MetricStorageError          = internalmetrics.MetricStorageError
	// MetricVerifyLatency is a histogram, reported only in
	// MetricsSnapshot.Histograms.
	MetricVerifyLatency = internalmetrics.MetricVerifyLatency
)

// Metrics holds the engine's in-process counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics set from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(cfg.Enabled, cfg.EnableLatencyHistograms)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
}
