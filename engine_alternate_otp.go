package goOTP

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/otp"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/google/uuid"
)

// IssueAlternateOTP creates a numeric code for delivery over channel ("sms"
// or "email") to destination. Only a hash of the code is stored; the
// plaintext is returned once in the issue and the caller is responsible for
// delivering it.
//
// With AlternateOTP.InvalidatePrevious every earlier code for the same
// principal and channel stops working. Issuance is refused with ErrLocked
// while the principal is locked and with ErrAlternateOTPCooldown inside the
// resend cooldown.
func (e *Engine) IssueAlternateOTP(ctx context.Context, principal, channel, destination string) (*AlternateOTPIssue, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.challenges == nil {
		return nil, ErrAlternateOTPDisabled
	}
	if principal == "" {
		return nil, ErrPrincipalRequired
	}
	if !e.config.channelAllowed(channel) {
		return nil, ErrInvalidChannel
	}
	if destination == "" {
		return nil, ErrDestinationRequired
	}

	meta := func() map[string]string {
		return map[string]string{"channel": channel}
	}

	st, err := e.lockout.Check(ctx, principal, e.now())
	if err != nil {
		return nil, e.storageFailure(ctx, "lockout check", err)
	}
	if st.Locked {
		e.metricInc(MetricLockedRejected)
		e.emitAudit(ctx, auditEventLockedRejected, false, principal, ErrLocked, meta)
		return nil, fmt.Errorf("%w: retry in %s", ErrLocked, st.RetryAfter.Round(time.Second))
	}

	wait, err := e.issueLimiter.Check(ctx, principal, channel)
	if err != nil {
		var throttled error
		switch {
		case errors.Is(err, limiters.ErrAlternateIssueCooldown):
			throttled = ErrAlternateOTPCooldown
		case errors.Is(err, limiters.ErrAlternateIssueRateLimited):
			throttled = ErrAlternateOTPRateLimited
		default:
			return nil, e.storageFailure(ctx, "alternate otp throttle", err)
		}
		e.metricInc(MetricAlternateOTPCooldown)
		e.emitAudit(ctx, auditEventAlternateOTPThrottled, false, principal, throttled, meta)
		return nil, fmt.Errorf("%w: retry in %s", throttled, wait.Round(time.Second))
	}

	code, err := otp.NumericCode(e.random, e.config.AlternateOTP.Digits)
	if err != nil {
		e.refundIssueSlot(ctx, principal, channel)
		return nil, err
	}

	now := e.now()
	id := uuid.NewString()
	rec := &stores.AlternateChallenge{
		ID:          id,
		Destination: destination,
		CodeHash:    stores.AlternateCodeHash(principal, id, code),
		IssuedAt:    now,
		ExpiresAt:   now.Add(e.config.AlternateOTP.TTL),
	}
	if err := e.challenges.Issue(ctx, principal, channel, rec, e.config.AlternateOTP.InvalidatePrevious, now); err != nil {
		e.refundIssueSlot(ctx, principal, channel)
		return nil, e.storageFailure(ctx, "issue alternate otp", err)
	}

	outstanding, err := e.challenges.Pending(ctx, principal, channel, now)
	if err != nil {
		e.logger.WarnContext(ctx, "otp pending challenge count failed", "channel", channel, "error", err)
	}

	e.metricInc(MetricAlternateOTPIssued)
	e.emitAudit(ctx, auditEventAlternateOTPIssued, true, principal, nil, func() map[string]string {
		return map[string]string{
			"channel":      channel,
			"challenge_id": id,
		}
	})

	return &AlternateOTPIssue{
		ChallengeID: id,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		ExpiresAt:   rec.ExpiresAt,
		Outstanding: outstanding,
	}, nil
}

// refundIssueSlot releases the throttle slot of an issuance that never
// stored a code.
func (e *Engine) refundIssueSlot(ctx context.Context, principal, channel string) {
	if err := e.issueLimiter.Refund(ctx, principal, channel); err != nil {
		e.metricInc(MetricStorageError)
		e.logger.WarnContext(ctx, "otp alternate throttle refund failed", "channel", channel, "error", err)
	}
}

// VerifyAlternateOTP checks a code issued by IssueAlternateOTP. The code is
// compared against every outstanding challenge of the principal and channel.
// A match on a live challenge consumes it; a match on a consumed one yields
// ErrAlreadyUsed and on an expired one ErrExpired. All rejections count
// towards the shared lockout.
func (e *Engine) VerifyAlternateOTP(ctx context.Context, principal, channel, code string) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}
	if e.challenges == nil {
		return VerifyResult{}, ErrAlternateOTPDisabled
	}
	if principal == "" {
		return VerifyResult{}, ErrPrincipalRequired
	}
	if !e.config.channelAllowed(channel) {
		return VerifyResult{}, ErrInvalidChannel
	}
	defer e.observeVerify(time.Now())

	var reason error
	deps := e.verifyDeps(channel)
	deps.Metrics.Success = int(MetricAlternateOTPSuccess)
	deps.Metrics.Failure = int(MetricAlternateOTPFailure)
	deps.Events.Success = auditEventAlternateOTPSuccess
	deps.Events.Failure = auditEventAlternateOTPFailure
	deps.Evaluate = func(ctx context.Context) (flows.Outcome, error) {
		normalized := normalizeNumericCode(code)
		if len(normalized) != e.config.AlternateOTP.Digits || !isDigits(normalized) {
			reason = ErrInvalidEncoding
			return flows.OutcomeMismatch, nil
		}

		outcome, _, err := e.challenges.Consume(ctx, principal, channel, normalized, e.now())
		if err != nil {
			return flows.OutcomeMismatch, e.storageFailure(ctx, "consume alternate otp", err)
		}
		switch outcome {
		case stores.AlternateConsumed:
			return flows.OutcomeSuccess, nil
		case stores.AlternateAlreadyUsed:
			return flows.OutcomeAlreadyUsed, nil
		case stores.AlternateExpired:
			return flows.OutcomeExpired, nil
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
