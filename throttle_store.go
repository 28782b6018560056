package stepup

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/idforge/stepup/internal"
)

const throttleKeyPrefix = "sup:otp"

var errThrottleUnavailable = errors.New("throttle cache unavailable")

// throttleStore is the anti-replay cache for one-time-code sends. Each
// dispatched code writes an entry keyed by (subject, channel, code,
// purpose) with the resend-throttle TTL; while the entry lives, the same
// combination is refused without generating or dispatching a new code.
//
// Reservation uses SETNX, so two in-flight sends racing on the same key
// resolve to exactly one dispatch. The check-then-set race of the original
// design is deliberately closed here.
type throttleStore struct {
	redis redis.UniversalClient
}

func newThrottleStore(redisClient redis.UniversalClient) *throttleStore {
	return &throttleStore{redis: redisClient}
}

func (s *throttleStore) key(subject string, channel DeliveryChannel, code, purpose string) string {
	digest := internal.HashKeyParts(subject, string(channel), code, purpose)
	return throttleKeyPrefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Reserve atomically claims the throttle slot for the code. It returns
// false when a live entry already exists, meaning the previous code has not
// aged past the throttle window yet.
func (s *throttleStore) Reserve(ctx context.Context, subject string, channel DeliveryChannel, code, purpose string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.key(subject, channel, code, purpose), uuid.NewString(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errThrottleUnavailable, err)
	}
	return ok, nil
}

// Release drops the reservation, used when dispatch fails after the slot
// was claimed so the user can immediately retry.
func (s *throttleStore) Release(ctx context.Context, subject string, channel DeliveryChannel, code, purpose string) error {
	if err := s.redis.Del(ctx, s.key(subject, channel, code, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errThrottleUnavailable, err)
	}
	return nil
}
