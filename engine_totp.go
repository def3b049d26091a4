package goOTP

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/internal/flows"
)

// VerifyTOTP checks an authenticator app code for principal.
//
// A locked principal is rejected with VerifyLocked before the code is looked
// at. A principal without a confirmed credential gets VerifyNotEnrolled and
// the attempt is not counted. Any other rejection counts towards the lockout
// threshold; the failure that reaches it returns VerifyLocked. A success
// clears the attempt counter.
//
// The error return is reserved for storage failures (*StorageError) and
// misuse; it is never paired with VerifySuccess.
func (e *Engine) VerifyTOTP(ctx context.Context, principal, code string) (VerifyResult, error) {
	return e.verifyTOTP(ctx, principal, code, false)
}

func (e *Engine) verifyTOTP(ctx context.Context, principal, code string, confirming bool) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}
	if principal == "" {
		return VerifyResult{}, ErrPrincipalRequired
	}
	defer e.observeVerify(time.Now())

	var reason error
	deps := e.verifyDeps("totp")
	deps.Metrics.Success = int(MetricTOTPSuccess)
	deps.Metrics.Failure = int(MetricTOTPFailure)
	deps.Events.Success = auditEventTOTPSuccess
	deps.Events.Failure = auditEventTOTPFailure
	deps.Evaluate = func(ctx context.Context) (flows.Outcome, error) {
		outcome, malformed, err := e.evaluateTOTP(ctx, principal, code, confirming)
		if malformed {
			reason = ErrInvalidEncoding
		}
		return outcome, err
	}

	out, err := flows.RunGatedVerify(ctx, principal, deps)
	if err != nil {
		return VerifyResult{Status: VerifyFailure, Reason: ErrStorage}, err
	}
	return toVerifyResult(out, reason), nil
}

// evaluateTOTP resolves one candidate against the stored credential.
// malformed is set when the code could not have been produced by the
// credential at all (wrong length or non-digits).
func (e *Engine) evaluateTOTP(ctx context.Context, principal, code string, confirming bool) (outcome flows.Outcome, malformed bool, err error) {
	rec, err := e.store.GetCredential(ctx, principal)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return flows.OutcomeNotEnrolled, false, nil
		}
		return flows.OutcomeMismatch, false, e.storageFailure(ctx, "get credential", err)
	}
	if !rec.Confirmed && !confirming {
		return flows.OutcomeNotEnrolled, false, nil
	}

	params, err := e.totp.paramsFor(rec)
	if err != nil {
		return flows.OutcomeMismatch, false, e.storageFailure(ctx, "credential params", err)
	}

	normalized := normalizeNumericCode(code)
	if len(normalized) != params.Digits || !isDigits(normalized) {
		return flows.OutcomeMismatch, true, nil
	}

	secret, err := e.openSecret(principal, rec.Secret)
	if err != nil {
		return flows.OutcomeMismatch, false, e.storageFailure(ctx, "open secret", err)
	}

	counter, ok, err := e.totp.verify(secret, normalized, e.now(), params)
	if e.sealer != nil {
		clear(secret)
	}
	if err != nil {
		return flows.OutcomeMismatch, false, e.storageFailure(ctx, "verify totp", err)
	}
	if !ok {
		return flows.OutcomeMismatch, false, nil
	}

	if e.config.TOTP.EnforceReplayProtection {
		advanced, err := e.store.AdvanceCounter(ctx, principal, counter)
		if err != nil {
			return flows.OutcomeMismatch, false, e.storageFailure(ctx, "advance counter", err)
		}
		if !advanced {
			e.metricInc(MetricTOTPReplayRejected)
			return flows.OutcomeAlreadyUsed, false, nil
		}
	}

	if confirming && !rec.Confirmed {
		if err := e.store.ConfirmCredential(ctx, principal, e.now()); err != nil {
			if errors.Is(err, ErrCredentialNotFound) {
				return flows.OutcomeNotEnrolled, false, nil
			}
			return flows.OutcomeMismatch, false, e.storageFailure(ctx, "confirm credential", err)
		}
		e.metricInc(MetricEnrollmentConfirmed)
		e.emitAudit(ctx, auditEventEnrollmentConfirmed, true, principal, nil, nil)
	}

	return flows.OutcomeSuccess, false, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
