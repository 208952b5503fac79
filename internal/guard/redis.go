package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sptm.org/internal/auth"
)

// ErrUnavailable indicates the guard backend is unreachable. Callers must
// fail closed.
var ErrUnavailable = errors.New("guard backend unavailable")

// RedisStore is a Store backed by Redis, for deployments where several API
// instances must share rate-limit and lockout state. Redis executes each
// command atomically, which yields the one-winner-per-race guarantee without
// client-side locking.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func rateKey(key string) string    { return "grl:c:" + key }
func blockKey(key string) string   { return "grl:b:" + key }
func failureKey(key string) string { return "glo:c:" + key }
func lockKey(key string) string    { return "glo:l:" + key }

func (s *RedisStore) TakeRateLimit(ctx context.Context, key string, p Policy, now time.Time) (auth.RateLimitResult, error) {
	ttl, err := s.rdb.PTTL(ctx, blockKey(key)).Result()
	if err != nil {
		return auth.RateLimitResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl > 0 {
		return auth.RateLimitResult{Allowed: false, ResetTime: now.Add(ttl)}, nil
	}

	count, err := s.rdb.Incr(ctx, rateKey(key)).Result()
	if err != nil {
		return auth.RateLimitResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, rateKey(key), p.RateWindow).Err(); err != nil {
			return auth.RateLimitResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > int64(p.RateMaxAttempts) {
		if err := s.rdb.Set(ctx, blockKey(key), "1", p.RateBlock).Err(); err != nil {
			return auth.RateLimitResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return auth.RateLimitResult{Allowed: false, ResetTime: now.Add(p.RateBlock)}, nil
	}
	return auth.RateLimitResult{Allowed: true}, nil
}

func (s *RedisStore) LockoutStatus(ctx context.Context, key string, now time.Time) (auth.LockoutStatus, error) {
	ttl, err := s.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return auth.LockoutStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl > 0 {
		return auth.LockoutStatus{Locked: true, LockedUntil: now.Add(ttl)}, nil
	}
	return auth.LockoutStatus{}, nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, p Policy, now time.Time) (auth.LockoutStatus, error) {
	if status, err := s.LockoutStatus(ctx, key, now); err != nil || status.Locked {
		return status, err
	}

	count, err := s.rdb.Incr(ctx, failureKey(key)).Result()
	if err != nil {
		return auth.LockoutStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Refreshing the TTL on every failure makes the counter expire once the
	// latest failure is older than the reset window.
	if err := s.rdb.Expire(ctx, failureKey(key), p.FailureResetWindow).Err(); err != nil {
		return auth.LockoutStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(p.LockoutThreshold) {
		if err := s.rdb.Set(ctx, lockKey(key), "1", p.LockoutDuration).Err(); err != nil {
			return auth.LockoutStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := s.rdb.Del(ctx, failureKey(key)).Err(); err != nil {
			return auth.LockoutStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return auth.LockoutStatus{Locked: true, LockedUntil: now.Add(p.LockoutDuration)}, nil
	}
	return auth.LockoutStatus{}, nil
}

func (s *RedisStore) ClearLockout(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, failureKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
