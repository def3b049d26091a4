package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter provides Redis-backed fixed-window counters and cooldown slots.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client. Keys are
// namespaced under prefix.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "otp"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(name string) string {
	return l.prefix + ":" + name
}

// Allow records one hit in the window identified by name and returns
// ErrRateLimited once the count exceeds limit. The returned duration is the
// time left in the window when limited.
func (l *Limiter) Allow(ctx context.Context, name string, limit int, window time.Duration) (time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return 0, nil
	}

	key := l.key(name)
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return 0, err
	}
	if count <= int64(limit) {
		return 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = window
	}
	return ttl, ErrRateLimited
}

// Acquire claims a cooldown slot for ttl. While the slot is held Acquire
// returns ErrRateLimited and the time until it frees up.
func (l *Limiter) Acquire(ctx context.Context, name string, ttl time.Duration) (time.Duration, error) {
	if ttl <= 0 {
		return 0, nil
	}

	key := l.key(name)
	ok, err := l.redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok {
		return 0, nil
	}

	remaining, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if remaining < 0 {
		remaining = ttl
	}
	return remaining, ErrRateLimited
}

// Release drops counters and cooldown slots.
func (l *Limiter) Release(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, l.key(name))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// refundHitLua takes one hit back out of a live window without touching its
// expiry.
var refundHitLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return n
`)

// Refund returns one hit recorded by Allow. A window that already lapsed is
// left alone.
func (l *Limiter) Refund(ctx context.Context, name string) error {
	if err := refundHitLua.Run(ctx, l.redis, []string{l.key(name)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
