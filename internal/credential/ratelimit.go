package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles PAK-verification attempts per source IP using the
// INCR+EXPIRE+TTL pattern, repurposed from the teacher's login rate
// limiter (internal/auth/ratelimit.go) onto credential verification
// instead of password login. Redis is optional infrastructure: a nil
// RateLimiter or nil client means rate limiting is skipped entirely.
type RateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter builds a RateLimiter. maxAttempt is the number of failed
// verification attempts allowed per IP within window.
func NewRateLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, maxAttempt: maxAttempt, window: window}
}

// RateLimitResult is the outcome of a Check call.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check reports whether ip is currently allowed to attempt verification.
func (rl *RateLimiter) Check(ctx context.Context, ip string) (*RateLimitResult, error) {
	if rl == nil || rl.redis == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("pak_ratelimit:%s", ip)

	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{Allowed: false, RetryAt: time.Now().Add(ttl)}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: rl.maxAttempt - count}, nil
}

// Record registers a failed verification attempt for ip.
func (rl *RateLimiter) Record(ctx context.Context, ip string) error {
	if rl == nil || rl.redis == nil {
		return nil
	}

	key := fmt.Sprintf("pak_ratelimit:%s", ip)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	if incr.Val() == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}

	return nil
}

// Reset clears ip's counter, called after a successful verification.
func (rl *RateLimiter) Reset(ctx context.Context, ip string) error {
	if rl == nil || rl.redis == nil {
		return nil
	}
	return rl.redis.Del(ctx, fmt.Sprintf("pak_ratelimit:%s", ip)).Err()
}
