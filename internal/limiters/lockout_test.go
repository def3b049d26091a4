package limiters

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLockoutTriggersAtThresholdAndExpiresLazily(t *testing.T) {
	_, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 3, Duration: time.Minute})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 1; i <= 2; i++ {
		st, err := tr.Reserve(ctx, "u1", now)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if st.Locked || st.Triggered || st.Failures != i {
			t.Fatalf("attempt %d: unexpected state %+v", i, st)
		}
		if tr.Remaining(st) != 3-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, 3-i, tr.Remaining(st))
		}
	}

	st, err := tr.Reserve(ctx, "u1", now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if st.Locked || !st.Triggered || st.RetryAfter != time.Minute {
		t.Fatalf("expected the third attempt to be granted and engage the lock, got %+v", st)
	}

	// refused while locked; the deadline is not extended
	st, err = tr.Reserve(ctx, "u1", now.Add(20*time.Second))
	if err != nil {
		t.Fatalf("Reserve while locked: %v", err)
	}
	if !st.Locked || st.Triggered || st.RetryAfter != 40*time.Second {
		t.Fatalf("unexpected locked state %+v", st)
	}

	st, err = tr.Check(ctx, "u1", now.Add(59*time.Second))
	if err != nil || !st.Locked || st.RetryAfter != time.Second {
		t.Fatalf("expected 1s remaining, got %+v err=%v", st, err)
	}

	st, err = tr.Check(ctx, "u1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st.Locked || st.Failures != 0 {
		t.Fatalf("expected Normal(0) after expiry, got %+v", st)
	}
}

func TestLockoutResetClearsCounter(t *testing.T) {
	_, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 5, Duration: time.Minute})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 4; i++ {
		if _, err := tr.Reserve(ctx, "u1", now); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	if err := tr.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	st, err := tr.Reserve(ctx, "u1", now)
	if err != nil || st.Failures != 1 || st.Locked {
		t.Fatalf("expected fresh counter, got %+v err=%v", st, err)
	}
}

func TestLockoutRefundReturnsAttempt(t *testing.T) {
	_, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 3, Duration: time.Minute})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	first, err := tr.Reserve(ctx, "u1", now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := tr.Refund(ctx, "u1", first, now); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	st, err := tr.Check(ctx, "u1", now)
	if err != nil || st.Failures != 0 {
		t.Fatalf("expected empty counter after refund, got %+v err=%v", st, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := tr.Reserve(ctx, "u1", now); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	last, err := tr.Reserve(ctx, "u1", now)
	if err != nil || !last.Triggered {
		t.Fatalf("expected trigger, got %+v err=%v", last, err)
	}
	if err := tr.Refund(ctx, "u1", last, now); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	st, err = tr.Check(ctx, "u1", now)
	if err != nil || st.Locked || st.Failures != 2 {
		t.Fatalf("expected the refunded trigger to lift the lock, got %+v err=%v", st, err)
	}

	// a refund for an attempt that did not engage the lock leaves it in place
	if _, err := tr.Reserve(ctx, "u1", now); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := tr.Refund(ctx, "u1", first, now); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	st, err = tr.Check(ctx, "u1", now)
	if err != nil || !st.Locked {
		t.Fatalf("expected lock to survive an unrelated refund, got %+v err=%v", st, err)
	}
}

func TestLockoutFailureWindowDecay(t *testing.T) {
	_, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 3, Duration: time.Minute, FailureWindow: 10 * time.Minute})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		if _, err := tr.Reserve(ctx, "u1", now); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	st, err := tr.Reserve(ctx, "u1", now.Add(11*time.Minute))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if st.Locked || st.Triggered || st.Failures != 1 {
		t.Fatalf("expected decayed counter, got %+v", st)
	}
}

func TestLockoutConcurrentReservationsAreCapped(t *testing.T) {
	_, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 10, Duration: time.Minute})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var wg sync.WaitGroup
	var granted, triggered atomic.Int64
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := tr.Reserve(ctx, "u1", now)
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			if !st.Locked {
				granted.Add(1)
			}
			if st.Triggered {
				triggered.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 10 || triggered.Load() != 1 {
		t.Fatalf("expected 10 granted and 1 trigger, got %d and %d", granted.Load(), triggered.Load())
	}
	st, err := tr.Check(ctx, "u1", now)
	if err != nil || !st.Locked || st.Failures != 10 {
		t.Fatalf("expected locked at threshold, got %+v err=%v", st, err)
	}
}

func TestLockoutBackendFailureIsWrapped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	tr := NewLockoutTracker(rdb, "t", LockoutConfig{Threshold: 3, Duration: time.Minute})
	mr.Close()

	_, err := tr.Check(context.Background(), "u1", time.Now())
	if !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}

func TestAlternateIssueLimiterCooldownAndWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewAlternateIssueLimiter(rate.New(rdb, "t"), AlternateIssueConfig{
		ResendCooldown: 30 * time.Second,
		MaxPerWindow:   2,
		Window:         time.Hour,
	})
	ctx := context.Background()

	if _, err := l.Check(ctx, "u1", "sms"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	wait, err := l.Check(ctx, "u1", "sms")
	if !errors.Is(err, ErrAlternateIssueCooldown) || wait <= 0 || wait > 30*time.Second {
		t.Fatalf("expected cooldown, wait=%v err=%v", wait, err)
	}
	if _, err := l.Check(ctx, "u1", "email"); err != nil {
		t.Fatalf("other channel must be independent: %v", err)
	}

	mr.FastForward(31 * time.Second)
	if _, err := l.Check(ctx, "u1", "sms"); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	mr.FastForward(31 * time.Second)
	if _, err := l.Check(ctx, "u1", "sms"); !errors.Is(err, ErrAlternateIssueRateLimited) {
		t.Fatalf("expected window cap, got %v", err)
	}

	if err := l.Reset(ctx, "u1", "sms", "email"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := l.Check(ctx, "u1", "sms"); err != nil {
		t.Fatalf("issue after reset: %v", err)
	}
}

func TestAlternateIssueLimiterRefund(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewAlternateIssueLimiter(rate.New(rdb, "t"), AlternateIssueConfig{
		ResendCooldown: 30 * time.Second,
		MaxPerWindow:   1,
		Window:         time.Hour,
	})
	ctx := context.Background()

	if _, err := l.Check(ctx, "u1", "sms"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := l.Refund(ctx, "u1", "sms"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if mr.Exists("t:aow:sms:u1") {
		t.Fatal("expected the window counter to be returned")
	}

	// both the cooldown slot and the single window hit are available again
	if _, err := l.Check(ctx, "u1", "sms"); err != nil {
		t.Fatalf("Check after refund: %v", err)
	}
	mr.FastForward(31 * time.Second)
	if _, err := l.Check(ctx, "u1", "sms"); !errors.Is(err, ErrAlternateIssueRateLimited) {
		t.Fatalf("expected window cap, got %v", err)
	}
}
