package goOTP

import (
	"context"
)

// LockoutStatus reports principal's attempt tracker without recording an
// attempt. An elapsed lock is cleared as a side effect.
func (e *Engine) LockoutStatus(ctx context.Context, principal string) (LockoutState, error) {
	if !e.ready() {
		return LockoutState{}, ErrEngineNotReady
	}
	if principal == "" {
		return LockoutState{}, ErrPrincipalRequired
	}

	st, err := e.lockout.Check(ctx, principal, e.now())
	if err != nil {
		return LockoutState{}, e.storageFailure(ctx, "lockout check", err)
	}
	return LockoutState{
		Locked:            st.Locked,
		Failures:          st.Failures,
		RemainingAttempts: e.lockout.Remaining(st),
		RetryAfter:        st.RetryAfter,
	}, nil
}

// Unlock clears principal's failure counter and any active lock.
func (e *Engine) Unlock(ctx context.Context, principal string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if principal == "" {
		return ErrPrincipalRequired
	}
	if err := e.lockout.Reset(ctx, principal); err != nil {
		return e.storageFailure(ctx, "lockout reset", err)
	}
	e.metricInc(MetricUnlock)
	e.emitAudit(ctx, auditEventUnlocked, true, principal, nil, nil)
	return nil
}
