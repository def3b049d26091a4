package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/internal/rate"
)

// AlternateIssueConfig bounds how often an out-of-band code may be issued to
// one principal on one channel.
type AlternateIssueConfig struct {
	ResendCooldown time.Duration
	MaxPerWindow   int
	Window         time.Duration
}

var (
	ErrAlternateIssueCooldown    = errors.New("alternate otp resend cooldown active")
	ErrAlternateIssueRateLimited = errors.New("alternate otp issue rate limited")
	ErrAlternateIssueUnavailable = errors.New("alternate otp limiter unavailable")
)

// AlternateIssueLimiter throttles alternate-channel code issuance.
type AlternateIssueLimiter struct {
	limiter *rate.Limiter
	config  AlternateIssueConfig
}

// NewAlternateIssueLimiter creates a limiter over the given rate primitives.
func NewAlternateIssueLimiter(limiter *rate.Limiter, cfg AlternateIssueConfig) *AlternateIssueLimiter {
	return &AlternateIssueLimiter{limiter: limiter, config: cfg}
}

func cooldownName(principal, channel string) string {
	return "aoc:" + channel + ":" + principal
}

func windowName(principal, channel string) string {
	return "aow:" + channel + ":" + principal
}

// Check claims an issuance slot. On refusal it returns the wait time along
// with ErrAlternateIssueCooldown or ErrAlternateIssueRateLimited.
func (l *AlternateIssueLimiter) Check(ctx context.Context, principal, channel string) (time.Duration, error) {
	if l == nil || l.limiter == nil {
		return 0, nil
	}

	wait, err := l.limiter.Acquire(ctx, cooldownName(principal, channel), l.config.ResendCooldown)
	if err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return wait, ErrAlternateIssueCooldown
		}
		return 0, fmt.Errorf("%w: %v", ErrAlternateIssueUnavailable, err)
	}

	wait, err = l.limiter.Allow(ctx, windowName(principal, channel), l.config.MaxPerWindow, l.config.Window)
	if err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return wait, ErrAlternateIssueRateLimited
		}
		return 0, fmt.Errorf("%w: %v", ErrAlternateIssueUnavailable, err)
	}
	return 0, nil
}

// Refund gives back a slot claimed by Check, for an issuance that failed
// before a code reached the store.
func (l *AlternateIssueLimiter) Refund(ctx context.Context, principal, channel string) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	var errs []error
	if l.config.ResendCooldown > 0 {
		errs = append(errs, l.limiter.Release(ctx, cooldownName(principal, channel)))
	}
	if l.config.MaxPerWindow > 0 && l.config.Window > 0 {
		errs = append(errs, l.limiter.Refund(ctx, windowName(principal, channel)))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", ErrAlternateIssueUnavailable, err)
	}
	return nil
}

// Reset clears the cooldown and window counters, e.g. after the credential is
// removed.
func (l *AlternateIssueLimiter) Reset(ctx context.Context, principal string, channels ...string) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	names := make([]string, 0, len(channels)*2)
	for _, ch := range channels {
		names = append(names, cooldownName(principal, ch), windowName(principal, ch))
	}
	if err := l.limiter.Release(ctx, names...); err != nil {
		return fmt.Errorf("%w: %v", ErrAlternateIssueUnavailable, err)
	}
	return nil
}
