package goOTP

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/internal/flows"
)

// VerifyBackupCode consumes one backup code. Input is case-insensitive and
// may contain hyphens or spaces. A code succeeds at most once; presenting it
// again yields VerifyFailure with ErrAlreadyUsed. The lockout gate is the
// same one VerifyTOTP uses, and a locked principal's codes are left
// untouched.
func (e *Engine) VerifyBackupCode(ctx context.Context, principal, code string) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}
	if principal == "" {
		return VerifyResult{}, ErrPrincipalRequired
	}
	defer e.observeVerify(time.Now())

	var reason error
	deps := e.verifyDeps("backup_code")
	deps.Metrics.Success = int(MetricBackupCodeUsed)
	deps.Metrics.Failure = int(MetricBackupCodeFailed)
	deps.Events.Success = auditEventBackupCodeUsed
	deps.Events.Failure = auditEventBackupCodeFailed
	deps.Evaluate = func(ctx context.Context) (flows.Outcome, error) {
		rec, err := e.store.GetCredential(ctx, principal)
		if err != nil {
			if errors.Is(err, ErrCredentialNotFound) {
				return flows.OutcomeNotEnrolled, nil
			}
			return flows.OutcomeMismatch, e.storageFailure(ctx, "get credential", err)
		}
		if !rec.Confirmed {
			return flows.OutcomeNotEnrolled, nil
		}

		canonical := flows.CanonicalizeBackupCode(code)
		if !flows.ValidBackupCodeShape(canonical, e.config.BackupCodes.Length) {
			reason = ErrInvalidEncoding
			return flows.OutcomeMismatch, nil
		}

		res, err := e.store.ConsumeBackupCode(ctx, principal, flows.BackupCodeHash(principal, canonical), e.now())
		if err != nil {
			return flows.OutcomeMismatch, e.storageFailure(ctx, "consume backup code", err)
		}
		switch res {
		case BackupCodeConsumed:
			return flows.OutcomeSuccess, nil
		case BackupCodeAlreadyUsed:
			return flows.OutcomeAlreadyUsed, nil
		default:
			return flows.OutcomeMismatch, nil
		}
	}

	out, err := flows.RunGatedVerify(ctx, principal, deps)
	if err != nil {
		return VerifyResult{Status: VerifyFailure, Reason: ErrStorage}, err
	}
	return toVerifyResult(out, reason), nil
}

// RegenerateBackupCodes replaces principal's whole backup code set and
// returns the new plaintext codes. Every earlier code stops working. It
// returns ErrNotEnrolled when principal has no credential.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principal string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.config.BackupCodes.Count <= 0 {
		return nil, ErrBackupCodesDisabled
	}

	return flows.RunRegenerateBackupCodes(ctx, principal, flows.BackupCodeDeps{
		BackupCodeCount:  e.config.BackupCodes.Count,
		BackupCodeLength: e.config.BackupCodes.Length,
		ReplaceBackupCodes: func(ctx context.Context, principal string, hashes [][32]byte) error {
			err := e.store.ReplaceBackupCodes(ctx, principal, hashes)
			if errors.Is(err, ErrCredentialNotFound) {
				return ErrNotEnrolled
			}
			if err != nil {
				return e.storageFailure(ctx, "replace backup codes", err)
			}
			return nil
		},
		RandomIndex: e.randomIndex,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.BackupCodeMetrics{
			BackupCodeRegenerated: int(MetricBackupCodeRegenerated),
		},
		Events: flows.BackupCodeEvents{
			BackupCodesGenerated: auditEventBackupCodesGenerated,
		},
		Errors: flows.BackupCodeErrors{
			EngineNotReady:   ErrEngineNotReady,
			PrincipalMissing: ErrPrincipalRequired,
		},
	})
}

// RemainingBackupCodes counts principal's unused backup codes.
func (e *Engine) RemainingBackupCodes(ctx context.Context, principal string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if principal == "" {
		return 0, ErrPrincipalRequired
	}
	n, err := e.store.CountUnusedBackupCodes(ctx, principal)
	if err != nil {
		return 0, e.storageFailure(ctx, "count backup codes", err)
	}
	return n, nil
}
