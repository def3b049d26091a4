package goOTP

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/otp"
	"github.com/MrEthical07/goOTP/internal/stores"
)

// Engine is the OTP authentication engine. Build one with New().…Build();
// every method is safe for concurrent use afterwards.
type Engine struct {
	config       Config
	store        CredentialStore
	lockout      *limiters.LockoutTracker
	challenges   *stores.AlternateChallengeStore
	issueLimiter *limiters.AlternateIssueLimiter
	sealer       SecretSealer
	clock        Clock
	random       io.Reader
	logger       *slog.Logger
	audit        *audit.Dispatcher
	metrics      *Metrics
	totp         *totpManager
}

// Close flushes and stops the audit dispatcher, waiting at most
// Audit.FlushTimeout. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full or the flush deadline passed.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of the engine counters. It is empty when
// metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.lockout != nil && e.totp != nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

func (e *Engine) randomIndex(n int) (int, error) {
	return otp.RandomIndex(e.random, n)
}

// storageFailure counts, logs and wraps a backend error.
func (e *Engine) storageFailure(ctx context.Context, op string, err error) error {
	e.metricInc(MetricStorageError)
	e.logger.WarnContext(ctx, "otp storage failure", "op", op, "error", err)
	return storageError(op, err)
}

// verifyDeps wires the shared lockout gate for one verification channel.
func (e *Engine) verifyDeps(channel string) flows.VerifyDeps {
	return flows.VerifyDeps{
		Channel: channel,
		ReserveAttempt: func(ctx context.Context, principal string) (flows.Gate, error) {
			st, err := e.lockout.Reserve(ctx, principal, e.now())
			if err != nil {
				return flows.Gate{}, e.storageFailure(ctx, "lockout reserve", err)
			}
			return e.gate(st), nil
		},
		RefundAttempt: func(ctx context.Context, principal string, g flows.Gate) error {
			return e.lockout.Refund(ctx, principal, limiters.LockoutState{
				Locked:    g.Locked,
				Triggered: g.Triggered,
			}, e.now())
		},
		ResetFailures: func(ctx context.Context, principal string) error {
			return e.lockout.Reset(ctx, principal)
		},
		OnTrackerError: func(err error) {
			e.metricInc(MetricStorageError)
			e.logger.Warn("otp lockout update failed", "error", err)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.VerifyMetrics{
			LockedRejected:   int(MetricLockedRejected),
			LockoutTriggered: int(MetricLockoutTriggered),
		},
		Events: flows.VerifyEvents{
			LockedRejected:   auditEventLockedRejected,
			LockoutTriggered: auditEventLockoutTriggered,
		},
		Errors: flows.VerifyErrors{
			EngineNotReady: ErrEngineNotReady,
			Locked:         ErrLocked,
			Mismatch:       ErrMismatch,
			AlreadyUsed:    ErrAlreadyUsed,
			Expired:        ErrExpired,
			NotEnrolled:    ErrNotEnrolled,
		},
	}
}

func (e *Engine) gate(st limiters.LockoutState) flows.Gate {
	return flows.Gate{
		Locked:     st.Locked,
		Remaining:  e.lockout.Remaining(st),
		RetryAfter: st.RetryAfter,
		Triggered:  st.Triggered,
	}
}

// toVerifyResult translates a flow verdict. reason overrides the default
// failure reason derived from the outcome (used for ErrInvalidEncoding).
func toVerifyResult(out flows.VerifyOutput, reason error) VerifyResult {
	switch out.Status {
	case flows.StatusSuccess:
		return VerifyResult{Status: VerifySuccess}
	case flows.StatusLocked:
		return VerifyResult{Status: VerifyLocked, RetryAfter: out.RetryAfter, Reason: ErrLocked}
	case flows.StatusNotEnrolled:
		return VerifyResult{Status: VerifyNotEnrolled, Reason: ErrNotEnrolled}
	}

	if reason == nil {
		switch out.Outcome {
		case flows.OutcomeAlreadyUsed:
			reason = ErrAlreadyUsed
		case flows.OutcomeExpired:
			reason = ErrExpired
		default:
			reason = ErrMismatch
		}
	}
	return VerifyResult{
		Status:            VerifyFailure,
		RemainingAttempts: out.RemainingAttempts,
		Reason:            reason,
	}
}
