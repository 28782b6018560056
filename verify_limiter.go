package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errVerifyRateLimited        = errors.New("code verification rate limited")
	errVerifyLimiterUnavailable = errors.New("verify limiter unavailable")
)

// verifyLimiter bounds failed code-verification attempts per subject using
// fixed-window Redis counters. The TTL is set on the first failure in the
// window; successful verification clears the counter.
type verifyLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

func newVerifyLimiter(redisClient redis.UniversalClient, cfg OTPConfig) *verifyLimiter {
	return &verifyLimiter{
		redis:       redisClient,
		maxAttempts: cfg.MaxVerifyAttempts,
		cooldown:    cfg.VerifyCooldown,
	}
}

func (l *verifyLimiter) key(subject string) string {
	return "sup:vfy:" + subject
}

func (l *verifyLimiter) Check(ctx context.Context, subject string) error {
	count, err := l.redis.Get(ctx, l.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", errVerifyLimiterUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return errVerifyRateLimited
	}
	return nil
}

func (l *verifyLimiter) RecordFailure(ctx context.Context, subject string) error {
	count, err := l.redis.Incr(ctx, l.key(subject)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errVerifyLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(subject), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", errVerifyLimiterUnavailable, err)
		}
	}
	if count >= int64(l.maxAttempts) {
		return errVerifyRateLimited
	}
	return nil
}

func (l *verifyLimiter) Reset(ctx context.Context, subject string) error {
	if err := l.redis.Del(ctx, l.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errVerifyLimiterUnavailable, err)
	}
	return nil
}
