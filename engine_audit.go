package goOTP

import (
	"context"
	"errors"
)

const (
	auditEventEnrolled              = "otp_enrolled"
	auditEventEnrollmentConfirmed   = "otp_enrollment_confirmed"
	auditEventDisabled              = "otp_disabled"
	auditEventTOTPSuccess           = "totp_success"
	auditEventTOTPFailure           = "totp_failure"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventBackupCodeFailed      = "backup_code_failed"
	auditEventBackupCodesGenerated  = "backup_codes_generated"
	auditEventAlternateOTPIssued    = "alternate_otp_issued"
	auditEventAlternateOTPThrottled = "alternate_otp_throttled"
	auditEventAlternateOTPSuccess   = "alternate_otp_success"
	auditEventAlternateOTPFailure   = "alternate_otp_failure"
	auditEventLockedRejected        = "locked_rejected"
	auditEventLockoutTriggered      = "lockout_triggered"
	auditEventUnlocked              = "lockout_cleared"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidEncoding AuditErrorCode = "invalid_encoding"
	auditErrNotEnrolled     AuditErrorCode = "not_enrolled"
	auditErrLocked          AuditErrorCode = "locked"
	auditErrExpired         AuditErrorCode = "expired"
	auditErrAlreadyUsed     AuditErrorCode = "already_used"
	auditErrMismatch        AuditErrorCode = "mismatch"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principal string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principal,
		RequestID:   requestIDFromContext(ctx),
		IP:          clientIPFromContext(ctx),
		Success:     success,
	}
	if ch, ok := metadata["channel"]; ok {
		event.Channel = ch
		delete(metadata, "channel")
	}
	if len(metadata) > 0 {
		event.Metadata = metadata
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidEncoding):
		return auditErrInvalidEncoding
	case errors.Is(err, ErrNotEnrolled):
		return auditErrNotEnrolled
	case errors.Is(err, ErrLocked):
		return auditErrLocked
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrAlreadyUsed):
		return auditErrAlreadyUsed
	case errors.Is(err, ErrMismatch):
		return auditErrMismatch
	case errors.Is(err, ErrAlternateOTPCooldown),
		errors.Is(err, ErrAlternateOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStorage):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
