package goOTP

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockoutTriggersAtThreshold(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	bad := wrongCode(te.code(t, enr, 0))

	for want := 4; want >= 1; want-- {
		res, err := te.VerifyTOTP(ctx, "u1", bad)
		res = mustVerify(t, res, err, VerifyFailure)
		if res.RemainingAttempts != want {
			t.Fatalf("expected %d remaining, got %d", want, res.RemainingAttempts)
		}
	}

	res, err := te.VerifyTOTP(ctx, "u1", bad)
	res = mustVerify(t, res, err, VerifyLocked)
	if res.RetryAfter <= 0 || res.RetryAfter > 5*time.Minute {
		t.Fatalf("unexpected RetryAfter %s", res.RetryAfter)
	}
	if !errors.Is(res.Reason, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", res.Reason)
	}

	// Correct codes are rejected unevaluated while locked.
	res, err = te.VerifyTOTP(ctx, "u1", te.code(t, enr, 0))
	mustVerify(t, res, err, VerifyLocked)
	res, err = te.VerifyBackupCode(ctx, "u1", enr.BackupCodes[0])
	mustVerify(t, res, err, VerifyLocked)
	if n, err := te.RemainingBackupCodes(ctx, "u1"); err != nil || n != 10 {
		t.Fatalf("backup code consumed while locked: %d (%v)", n, err)
	}

	te.clock.Advance(2 * time.Minute)
	st, err := te.LockoutStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("LockoutStatus failed: %v", err)
	}
	if !st.Locked || st.RetryAfter != 3*time.Minute {
		t.Fatalf("expected 3m left, got %+v", st)
	}

	te.clock.Advance(3*time.Minute + time.Second)
	st, err = te.LockoutStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("LockoutStatus failed: %v", err)
	}
	if st.Locked || st.Failures != 0 || st.RemainingAttempts != 5 {
		t.Fatalf("expected released tracker, got %+v", st)
	}

	res, err = te.VerifyTOTP(ctx, "u1", te.code(t, enr, 0))
	mustVerify(t, res, err, VerifySuccess)

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricLockoutTriggered] != 1 || snap.Counters[MetricLockedRejected] != 2 {
		t.Fatalf("unexpected lockout metrics: %+v", snap.Counters)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	good := te.code(t, enr, 0)

	for i := 0; i < 3; i++ {
		res, err := te.VerifyTOTP(ctx, "u1", wrongCode(good))
		mustVerify(t, res, err, VerifyFailure)
	}
	res, err := te.VerifyTOTP(ctx, "u1", good)
	mustVerify(t, res, err, VerifySuccess)

	res, err = te.VerifyTOTP(ctx, "u1", wrongCode(good))
	res = mustVerify(t, res, err, VerifyFailure)
	if res.RemainingAttempts != 4 {
		t.Fatalf("expected counter reset, got %d remaining", res.RemainingAttempts)
	}
}

func TestLockoutSharedAcrossChannels(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	bad := wrongCode(te.code(t, enr, 0))

	for i := 0; i < 2; i++ {
		res, err := te.VerifyTOTP(ctx, "u1", bad)
		mustVerify(t, res, err, VerifyFailure)
	}
	for i := 0; i < 2; i++ {
		res, err := te.VerifyBackupCode(ctx, "u1", "ZZZZ-ZZZZ")
		mustVerify(t, res, err, VerifyFailure)
	}
	res, err := te.VerifyAlternateOTP(ctx, "u1", ChannelEmail, "000000")
	mustVerify(t, res, err, VerifyLocked)

	if _, err := te.IssueAlternateOTP(ctx, "u1", ChannelSMS, "+15550100"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected issuance to be refused while locked, got %v", err)
	}
}

func TestUnlock(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.Threshold = 3
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	bad := wrongCode(te.code(t, enr, 0))

	for i := 0; i < 3; i++ {
		_, _ = te.VerifyTOTP(ctx, "u1", bad)
	}
	if st, _ := te.LockoutStatus(ctx, "u1"); !st.Locked {
		t.Fatalf("expected locked, got %+v", st)
	}

	if err := te.Unlock(ctx, "u1"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	res, err := te.VerifyTOTP(ctx, "u1", te.code(t, enr, 0))
	mustVerify(t, res, err, VerifySuccess)

	if got := te.MetricsSnapshot().Counters[MetricUnlock]; got != 1 {
		t.Fatalf("expected 1 unlock, got %d", got)
	}
}

func TestFailureWindowDecay(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.FailureWindow = time.Minute
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	bad := wrongCode(te.code(t, enr, 0))

	for i := 0; i < 4; i++ {
		res, err := te.VerifyTOTP(ctx, "u1", bad)
		mustVerify(t, res, err, VerifyFailure)
	}

	te.clock.Advance(2 * time.Minute)
	res, err := te.VerifyTOTP(ctx, "u1", wrongCode(te.code(t, enr, 0)))
	res = mustVerify(t, res, err, VerifyFailure)
	if res.RemainingAttempts != 4 {
		t.Fatalf("expected stale failures to be forgotten, got %d remaining", res.RemainingAttempts)
	}
}

func TestLockoutCapsConcurrentGuesses(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	enr := te.enroll(t, "u1")
	bad := wrongCode(te.code(t, enr, 0))

	const guesses = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	statuses := map[VerifyStatus]int{}
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := te.VerifyTOTP(ctx, "u1", bad)
			if err != nil {
				t.Errorf("VerifyTOTP: %v", err)
				return
			}
			mu.Lock()
			statuses[res.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[VerifySuccess] != 0 || statuses[VerifyFailure] != 4 || statuses[VerifyLocked] != guesses-4 {
		t.Fatalf("expected 4 failures and %d locked, got %v", guesses-4, statuses)
	}
	snap := te.MetricsSnapshot()
	if got := snap.Counters[MetricTOTPFailure]; got != 5 {
		t.Fatalf("expected exactly 5 evaluated guesses, got %d", got)
	}
	if got := snap.Counters[MetricLockoutTriggered]; got != 1 {
		t.Fatalf("expected one lockout trigger, got %d", got)
	}
	if got := snap.Counters[MetricLockedRejected]; got != guesses-5 {
		t.Fatalf("expected %d rejected unevaluated, got %d", guesses-5, got)
	}

	// a correct code is refused for the rest of the lock period
	res, err := te.VerifyTOTP(ctx, "u1", te.code(t, enr, 0))
	mustVerify(t, res, err, VerifyLocked)
}
