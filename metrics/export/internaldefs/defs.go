package internaldefs

import (
	goOTP "github.com/MrEthical07/goOTP"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goOTP.MetricEnrollment, Name: "otp_enrollment_total", Help: "TOTP enrollments created."},
	{ID: goOTP.MetricEnrollmentConfirmed, Name: "otp_enrollment_confirmed_total", Help: "Pending enrollments activated by a first code."},
	{ID: goOTP.MetricDisable, Name: "otp_disable_total", Help: "Credentials removed."},
	{ID: goOTP.MetricTOTPSuccess, Name: "otp_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: goOTP.MetricTOTPFailure, Name: "otp_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: goOTP.MetricTOTPReplayRejected, Name: "otp_totp_replay_rejected_total", Help: "TOTP codes rejected because their step was already used."},
	{ID: goOTP.MetricBackupCodeUsed, Name: "otp_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goOTP.MetricBackupCodeFailed, Name: "otp_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: goOTP.MetricBackupCodeRegenerated, Name: "otp_backup_code_regenerated_total", Help: "Backup code set regenerations."},
	{ID: goOTP.MetricAlternateOTPIssued, Name: "otp_alternate_issued_total", Help: "SMS or email codes issued."},
	{ID: goOTP.MetricAlternateOTPCooldown, Name: "otp_alternate_throttled_total", Help: "SMS or email issuance refused by cooldown or cap."},
	{ID: goOTP.MetricAlternateOTPSuccess, Name: "otp_alternate_success_total", Help: "Accepted SMS or email codes."},
	{ID: goOTP.MetricAlternateOTPFailure, Name: "otp_alternate_failure_total", Help: "Rejected SMS or email codes."},
	{ID: goOTP.MetricLockedRejected, Name: "otp_locked_rejected_total", Help: "Attempts rejected because the principal was locked."},
	{ID: goOTP.MetricLockoutTriggered, Name: "otp_lockout_triggered_total", Help: "Principals moved into the locked state."},
	{ID: goOTP.MetricUnlock, Name: "otp_unlock_total", Help: "Manual lockout clears."},
	{ID: goOTP.MetricStorageError, Name: "otp_storage_error_total", Help: "Backend failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricVerifyLatency, Name: "otp_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine buckets.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix names the same bounds for exporters that cannot use
// labels.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
