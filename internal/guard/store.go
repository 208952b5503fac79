package guard

import (
	"context"
	"time"

	"sptm.org/internal/auth"
)

// Store is the keyed state backend for rate limiting and lockout tracking.
// Every method is one logical transaction: the read-modify-write for a key
// happens atomically so concurrent failures cannot both observe
// count = threshold-1 and miss the lockout. Implementations: a mutex-sharded
// in-process map and a Redis client.
type Store interface {
	// TakeRateLimit opens or advances the fixed window for the key and
	// reports whether the request is within budget. Exceeding the budget arms
	// a block that denies everything until it elapses.
	TakeRateLimit(ctx context.Context, key string, p Policy, now time.Time) (auth.RateLimitResult, error)
	// LockoutStatus is a read-only check; expired lockouts are cleared lazily.
	LockoutStatus(ctx context.Context, key string, now time.Time) (auth.LockoutStatus, error)
	// RecordFailure counts a failed attempt, discarding counts older than the
	// reset window, and arms the lockout at the threshold.
	RecordFailure(ctx context.Context, key string, p Policy, now time.Time) (auth.LockoutStatus, error)
	// ClearLockout unconditionally deletes the failure record for the key.
	ClearLockout(ctx context.Context, key string) error
}
