package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the shared attempt tracker.
type LockoutConfig struct {
	Threshold     int
	Duration      time.Duration
	FailureWindow time.Duration // 0 = failures never decay
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutState is a point-in-time view of one principal's counter.
type LockoutState struct {
	Locked     bool
	Failures   int
	RetryAfter time.Duration
	Triggered  bool // this attempt engaged the lock
}

// Hash fields: c = failure count, u = locked-until (unix ms, 0 when normal),
// l = last failure (unix ms).
//
// KEYS[1] = tracker key
// ARGV[1] = now (unix ms)
// ARGV[2] = failure window (ms, 0 = none)
//
// Returns {locked, retry_after_ms, failures}.
var checkLockoutLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local win = tonumber(ARGV[2])

local u = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')
if u > 0 then
  if u > now then
    return {1, u - now, tonumber(redis.call('HGET', KEYS[1], 'c') or '0')}
  end
  redis.call('DEL', KEYS[1])
  return {0, 0, 0}
end

local c = tonumber(redis.call('HGET', KEYS[1], 'c') or '0')
if win > 0 and c > 0 then
  local l = tonumber(redis.call('HGET', KEYS[1], 'l') or '0')
  if now - l >= win then
    redis.call('DEL', KEYS[1])
    return {0, 0, 0}
  end
end
return {0, 0, c}
`)

// reserveAttemptLua counts an attempt before its code is evaluated, so a
// burst of parallel requests cannot evaluate more than threshold candidates
// per lock period. The attempt that reaches threshold engages the lock
// immediately; a success clears it again through Reset.
//
// KEYS[1] = tracker key
// ARGV[1] = now (unix ms)
// ARGV[2] = threshold
// ARGV[3] = lock duration (ms)
// ARGV[4] = failure window (ms, 0 = none)
//
// Returns {granted, retry_after_ms, failures, triggered}.
var reserveAttemptLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local dur = tonumber(ARGV[3])
local win = tonumber(ARGV[4])

local u = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')
if u > now then
  return {0, u - now, threshold, 0}
end

local c = 0
if u == 0 then
  c = tonumber(redis.call('HGET', KEYS[1], 'c') or '0')
  if win > 0 and c > 0 then
    local l = tonumber(redis.call('HGET', KEYS[1], 'l') or '0')
    if now - l >= win then
      c = 0
    end
  end
end

c = c + 1
if c >= threshold then
  redis.call('HSET', KEYS[1], 'c', threshold, 'u', now + dur, 'l', now)
  redis.call('PEXPIRE', KEYS[1], dur)
  return {1, dur, threshold, 1}
end

redis.call('HSET', KEYS[1], 'c', c, 'u', 0, 'l', now)
if win > 0 then
  redis.call('PEXPIRE', KEYS[1], win)
else
  redis.call('PERSIST', KEYS[1])
end
return {1, 0, c, 0}
`)

// refundAttemptLua gives back a reserved attempt that turned out not to be a
// guess (no credential, backend failure). A lock engaged by that attempt is
// lifted; a lock engaged by anyone else is left alone.
//
// KEYS[1] = tracker key
// ARGV[1] = now (unix ms)
// ARGV[2] = 1 when the refunded attempt engaged the lock
// ARGV[3] = failure window (ms, 0 = none)
//
// Returns the failure count after the refund.
var refundAttemptLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local triggered = tonumber(ARGV[2])
local win = tonumber(ARGV[3])

local u = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')
local c = tonumber(redis.call('HGET', KEYS[1], 'c') or '0')

if u > 0 then
  if triggered == 0 or u <= now then
    return c
  end
  redis.call('HSET', KEYS[1], 'u', 0)
end

c = c - 1
if c <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
redis.call('HSET', KEYS[1], 'c', c)
if win > 0 then
  redis.call('PEXPIRE', KEYS[1], win)
else
  redis.call('PERSIST', KEYS[1])
end
return c
`)

// LockoutTracker counts failed verification attempts per principal across
// every verification channel and locks the principal once Threshold
// consecutive failures accumulate. Lock expiry is evaluated lazily against the
// caller-supplied clock on the next access.
type LockoutTracker struct {
	redis  redis.UniversalClient
	config LockoutConfig
	prefix string
}

// NewLockoutTracker creates a new lockout tracker.
func NewLockoutTracker(redisClient redis.UniversalClient, prefix string, cfg LockoutConfig) *LockoutTracker {
	if prefix == "" {
		prefix = "otp"
	}
	return &LockoutTracker{redis: redisClient, config: cfg, prefix: prefix}
}

func (l *LockoutTracker) key(principal string) string {
	return l.prefix + ":lk:" + principal
}

// Remaining returns how many more failures the principal may make before the
// lock engages.
func (l *LockoutTracker) Remaining(s LockoutState) int {
	if l == nil || s.Locked {
		return 0
	}
	n := l.config.Threshold - s.Failures
	if n < 0 {
		return 0
	}
	return n
}

// Check reports the current state without recording an attempt.
func (l *LockoutTracker) Check(ctx context.Context, principal string, now time.Time) (LockoutState, error) {
	if l == nil || principal == "" {
		return LockoutState{}, nil
	}

	res, err := checkLockoutLua.Run(ctx, l.redis, []string{l.key(principal)},
		now.UnixMilli(), l.config.FailureWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) != 3 {
		return LockoutState{}, fmt.Errorf("%w: unexpected reply length %d", ErrLockoutUnavailable, len(res))
	}

	return LockoutState{
		Locked:     res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Failures:   int(res[2]),
	}, nil
}

// Reserve counts one attempt for principal before its code is evaluated.
// When the principal is already locked nothing is counted and the returned
// state has Locked set. Otherwise Failures includes this attempt, and
// Triggered reports that this attempt engaged the lock: should it fail, the
// principal stays locked for Duration.
func (l *LockoutTracker) Reserve(ctx context.Context, principal string, now time.Time) (LockoutState, error) {
	if l == nil || principal == "" {
		return LockoutState{}, nil
	}

	res, err := reserveAttemptLua.Run(ctx, l.redis, []string{l.key(principal)},
		now.UnixMilli(),
		l.config.Threshold,
		l.config.Duration.Milliseconds(),
		l.config.FailureWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) != 4 {
		return LockoutState{}, fmt.Errorf("%w: unexpected reply length %d", ErrLockoutUnavailable, len(res))
	}

	if res[0] == 0 {
		return LockoutState{
			Locked:     true,
			RetryAfter: time.Duration(res[1]) * time.Millisecond,
			Failures:   int(res[2]),
		}, nil
	}
	return LockoutState{
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Failures:   int(res[2]),
		Triggered:  res[3] == 1,
	}, nil
}

// Refund returns an attempt taken by Reserve. reserved is the state Reserve
// handed out for that attempt.
func (l *LockoutTracker) Refund(ctx context.Context, principal string, reserved LockoutState, now time.Time) error {
	if l == nil || principal == "" || reserved.Locked {
		return nil
	}

	triggered := 0
	if reserved.Triggered {
		triggered = 1
	}
	err := refundAttemptLua.Run(ctx, l.redis, []string{l.key(principal)},
		now.UnixMilli(), triggered, l.config.FailureWindow.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Reset clears the counter and any active lock (successful verification,
// administrative unlock, credential removal).
func (l *LockoutTracker) Reset(ctx context.Context, principal string) error {
	if l == nil || principal == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(principal)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
