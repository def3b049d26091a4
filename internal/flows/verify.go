package flows

import (
	"context"
	"time"
)

// Outcome is what an evaluator concluded about one candidate code.
type Outcome int

const (
	OutcomeMismatch Outcome = iota
	OutcomeSuccess
	OutcomeAlreadyUsed
	OutcomeExpired
	OutcomeNotEnrolled
)

// Status is the caller-facing verification verdict.
type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
	StatusLocked
	StatusNotEnrolled
)

// Gate is the attempt tracker's answer to one reservation. Locked means the
// attempt was refused. Otherwise Remaining is what is left should this
// attempt fail, and Triggered means this attempt engaged the lock.
type Gate struct {
	Locked     bool
	Remaining  int
	RetryAfter time.Duration
	Triggered  bool
}

type VerifyOutput struct {
	Status            Status
	Outcome           Outcome
	RemainingAttempts int
	RetryAfter        time.Duration
}

type VerifyMetrics struct {
	Success          int
	Failure          int
	LockedRejected   int
	LockoutTriggered int
}

type VerifyEvents struct {
	Success          string
	Failure          string
	LockedRejected   string
	LockoutTriggered string
}

type VerifyErrors struct {
	EngineNotReady error
	Locked         error
	Mismatch       error
	AlreadyUsed    error
	Expired        error
	NotEnrolled    error
}

// VerifyDeps wires one verification channel (TOTP, backup code, alternate
// OTP) into the shared lockout gate.
type VerifyDeps struct {
	Channel string

	ReserveAttempt func(context.Context, string) (Gate, error)
	RefundAttempt  func(context.Context, string, Gate) error
	ResetFailures  func(context.Context, string) error
	Evaluate       func(context.Context) (Outcome, error)
	OnTrackerError func(error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

// RunGatedVerify reserves an attempt slot, evaluates the candidate and settles
// the slot. The slot is taken before the code is looked at, so concurrent
// requests for one principal never evaluate more candidates than the lockout
// threshold allows. A locked principal is rejected before evaluation. A
// success clears the counter; a not-enrolled outcome or a backend error
// refunds the slot. Backend errors are returned untouched and never produce
// StatusSuccess.
func RunGatedVerify(ctx context.Context, principal string, deps VerifyDeps) (VerifyOutput, error) {
	normalizeVerifyDeps(&deps)

	if deps.ReserveAttempt == nil || deps.RefundAttempt == nil || deps.ResetFailures == nil || deps.Evaluate == nil {
		return VerifyOutput{}, deps.Errors.EngineNotReady
	}

	meta := func() map[string]string {
		return map[string]string{"channel": deps.Channel}
	}

	gate, err := deps.ReserveAttempt(ctx, principal)
	if err != nil {
		return VerifyOutput{}, err
	}
	if gate.Locked {
		deps.MetricInc(deps.Metrics.LockedRejected)
		deps.EmitAudit(ctx, deps.Events.LockedRejected, false, principal, deps.Errors.Locked, meta)
		return VerifyOutput{Status: StatusLocked, RetryAfter: gate.RetryAfter}, nil
	}

	outcome, err := deps.Evaluate(ctx)
	if err != nil {
		if rerr := deps.RefundAttempt(ctx, principal, gate); rerr != nil {
			deps.OnTrackerError(rerr)
		}
		return VerifyOutput{}, err
	}

	switch outcome {
	case OutcomeSuccess:
		if err := deps.ResetFailures(ctx, principal); err != nil {
			deps.OnTrackerError(err)
		}
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Success, true, principal, nil, meta)
		return VerifyOutput{Status: StatusSuccess, Outcome: outcome}, nil
	case OutcomeNotEnrolled:
		if err := deps.RefundAttempt(ctx, principal, gate); err != nil {
			deps.OnTrackerError(err)
		}
		deps.EmitAudit(ctx, deps.Events.Failure, false, principal, deps.Errors.NotEnrolled, meta)
		return VerifyOutput{Status: StatusNotEnrolled, Outcome: outcome}, nil
	}

	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, principal, outcomeError(outcome, deps.Errors), meta)

	if gate.Triggered {
		deps.MetricInc(deps.Metrics.LockoutTriggered)
		deps.EmitAudit(ctx, deps.Events.LockoutTriggered, false, principal, deps.Errors.Locked, func() map[string]string {
			return map[string]string{
				"channel":     deps.Channel,
				"retry_after": gate.RetryAfter.String(),
			}
		})
		return VerifyOutput{Status: StatusLocked, Outcome: outcome, RetryAfter: gate.RetryAfter}, nil
	}

	return VerifyOutput{Status: StatusFailure, Outcome: outcome, RemainingAttempts: gate.Remaining}, nil
}

func outcomeError(outcome Outcome, errs VerifyErrors) error {
	switch outcome {
	case OutcomeAlreadyUsed:
		return errs.AlreadyUsed
	case OutcomeExpired:
		return errs.Expired
	case OutcomeNotEnrolled:
		return errs.NotEnrolled
	default:
		return errs.Mismatch
	}
}

func normalizeVerifyDeps(deps *VerifyDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.OnTrackerError == nil {
		deps.OnTrackerError = func(error) {}
	}
}
