package goOTP

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/otp"
)

// Enroll creates a fresh TOTP credential for principal, replacing any
// existing one together with its backup codes. The returned Enrollment holds
// the base32 secret, the provisioning URI and the plaintext backup codes;
// none of them can be retrieved again.
//
// With TOTP.RequireConfirmation the credential stays inactive until
// ConfirmEnrollment accepts a code from it.
func (e *Engine) Enroll(ctx context.Context, principal string, opts ...EnrollOption) (*Enrollment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if principal == "" {
		return nil, ErrPrincipalRequired
	}

	var o enrollOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	params, err := e.totp.resolve(o)
	if err != nil {
		return nil, err
	}
	account := o.account
	if account == "" {
		account = principal
	}

	raw, err := otp.GenerateSecret(e.random, e.config.TOTP.SecretBytes)
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	sealed, err := e.sealSecret(principal, raw)
	if err != nil {
		return nil, err
	}

	var codes []string
	var hashes [][32]byte
	if e.config.BackupCodes.Count > 0 {
		codes, hashes, err = flows.GenerateBackupCodeSet(principal, e.config.BackupCodes.Count, e.config.BackupCodes.Length, e.randomIndex)
		if err != nil {
			return nil, err
		}
	}

	now := e.now()
	confirmed := !e.config.TOTP.RequireConfirmation
	rec := &CredentialRecord{
		Secret:          sealed,
		Algorithm:       string(params.Algorithm),
		Digits:          params.Digits,
		Period:          params.Period,
		Confirmed:       confirmed,
		LastUsedCounter: -1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if confirmed {
		rec.ConfirmedAt = now
	}

	if err := e.store.PutCredential(ctx, principal, rec, hashes); err != nil {
		return nil, e.storageFailure(ctx, "put credential", err)
	}

	secret := otp.EncodeBase32(raw)
	out := &Enrollment{
		Principal:            principal,
		Secret:               secret,
		ProvisioningURI:      e.totp.provisionURI(account, secret, params),
		BackupCodes:          codes,
		Algorithm:            string(params.Algorithm),
		Digits:               params.Digits,
		Period:               params.Period,
		RequiresConfirmation: !confirmed,
		CreatedAt:            now,
	}

	e.metricInc(MetricEnrollment)
	e.emitAudit(ctx, auditEventEnrolled, true, principal, nil, func() map[string]string {
		return map[string]string{
			"algorithm":    out.Algorithm,
			"digits":       strconv.Itoa(out.Digits),
			"period":       strconv.Itoa(out.Period),
			"backup_codes": strconv.Itoa(len(codes)),
			"confirmed":    strconv.FormatBool(confirmed),
		}
	})
	return out, nil
}

// ConfirmEnrollment activates a pending credential by verifying one code
// from it. It goes through the same lockout gate as VerifyTOTP. On an
// already confirmed credential it behaves like VerifyTOTP.
func (e *Engine) ConfirmEnrollment(ctx context.Context, principal, code string) (VerifyResult, error) {
	return e.verifyTOTP(ctx, principal, code, true)
}

// Disable removes principal's credential, backup codes, pending alternate
// codes and attempt counter. It returns ErrNotEnrolled when there was no
// credential.
func (e *Engine) Disable(ctx context.Context, principal string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if principal == "" {
		return ErrPrincipalRequired
	}

	existed, err := e.store.DeleteCredential(ctx, principal)
	if err != nil {
		return e.storageFailure(ctx, "delete credential", err)
	}

	var cleanup []error
	if e.challenges != nil {
		cleanup = append(cleanup, e.challenges.DeleteAll(ctx, principal, e.config.AlternateOTP.Channels...))
		cleanup = append(cleanup, e.issueLimiter.Reset(ctx, principal, e.config.AlternateOTP.Channels...))
	}
	cleanup = append(cleanup, e.lockout.Reset(ctx, principal))
	if err := errors.Join(cleanup...); err != nil {
		return e.storageFailure(ctx, "disable cleanup", err)
	}

	if !existed {
		return ErrNotEnrolled
	}

	e.metricInc(MetricDisable)
	e.emitAudit(ctx, auditEventDisabled, true, principal, nil, nil)
	return nil
}
