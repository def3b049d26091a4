package goOTP

import (
	"time"
)

// VerifyStatus is the verdict of one verification attempt.
type VerifyStatus int

const (
	// VerifyFailure means the code was rejected; RemainingAttempts says how
	// many more failures are tolerated before the principal is locked.
	VerifyFailure VerifyStatus = iota
	// VerifySuccess means the code was accepted.
	VerifySuccess
	// VerifyLocked means the principal is locked; RetryAfter says for how long.
	VerifyLocked
	// VerifyNotEnrolled means there is no active credential to check against.
	VerifyNotEnrolled
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifySuccess:
		return "success"
	case VerifyFailure:
		return "failure"
	case VerifyLocked:
		return "locked"
	case VerifyNotEnrolled:
		return "not_enrolled"
	default:
		return "unknown"
	}
}

// VerifyResult is returned by every verification operation. Reason is set
// for VerifyFailure (ErrMismatch, ErrAlreadyUsed, ErrExpired or
// ErrInvalidEncoding), VerifyLocked (ErrLocked) and VerifyNotEnrolled
// (ErrNotEnrolled).
type VerifyResult struct {
	Status            VerifyStatus
	RemainingAttempts int
	RetryAfter        time.Duration
	Reason            error
}

// OK reports whether the result is VerifySuccess.
func (r VerifyResult) OK() bool {
	return r.Status == VerifySuccess
}

// Enrollment is handed back once by Enroll. Secret and BackupCodes are
// plaintext and are not retrievable later.
type Enrollment struct {
	Principal            string
	Secret               string // base32, no padding
	ProvisioningURI      string
	BackupCodes          []string
	Algorithm            string
	Digits               int
	Period               int
	RequiresConfirmation bool
	CreatedAt            time.Time
}

// AlternateOTPIssue is handed back once by IssueAlternateOTP. The caller
// delivers Code to Destination over Channel.
type AlternateOTPIssue struct {
	ChallengeID string
	Channel     string
	Destination string
	Code        string
	ExpiresAt   time.Time
	// Outstanding counts live unused codes on the channel, this one
	// included. It is 1 unless AlternateOTP.InvalidatePrevious is off.
	Outstanding int
}

// LockoutState is a point-in-time view of the attempt tracker for one
// principal.
type LockoutState struct {
	Locked            bool
	Failures          int
	RemainingAttempts int
	RetryAfter        time.Duration
}

// Clock supplies the current time. Tests replace it to move time without
// sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type enrollOptions struct {
	account   string
	algorithm string
	digits    int
	period    int
}

// EnrollOption overrides per-credential enrollment parameters.
type EnrollOption func(*enrollOptions)

// WithAccountName sets the account label shown by authenticator apps.
// Defaults to the principal id.
func WithAccountName(name string) EnrollOption {
	return func(o *enrollOptions) { o.account = name }
}

// WithAlgorithm overrides TOTPConfig.Algorithm for one credential.
func WithAlgorithm(alg string) EnrollOption {
	return func(o *enrollOptions) { o.algorithm = alg }
}

// WithDigits overrides TOTPConfig.Digits for one credential.
func WithDigits(digits int) EnrollOption {
	return func(o *enrollOptions) { o.digits = digits }
}

// WithPeriod overrides TOTPConfig.Period for one credential.
func WithPeriod(seconds int) EnrollOption {
	return func(o *enrollOptions) { o.period = seconds }
}
