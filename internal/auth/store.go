package auth

import (
	"context"
	"time"
)

// Store describes the external principal store the engine depends on. Every
// method may be backed by network I/O; implementations must honor the context
// deadline. The engine treats transport failures as AUTH_BACKEND_UNAVAILABLE.
type Store interface {
	// FindByID returns the current record for a principal, or ErrNotFound.
	FindByID(ctx context.Context, kind Kind, id string) (*PrincipalRecord, error)
	// FindByEmail returns the record matching the email within the kind's
	// namespace, or ErrNotFound.
	FindByEmail(ctx context.Context, kind Kind, email string) (*PrincipalRecord, error)
	// UpdateLastLoginAndRefreshToken overwrites the current refresh token
	// pointer and stamps the login time.
	UpdateLastLoginAndRefreshToken(ctx context.Context, kind Kind, id, refreshHash string, at time.Time) error
	// SwapRefreshToken atomically replaces the refresh token pointer iff the
	// stored value still equals oldHash. Returns false when another rotation
	// already won; exactly one concurrent caller observes true.
	SwapRefreshToken(ctx context.Context, kind Kind, id, oldHash, newHash string) (bool, error)
	// ClearRefreshToken invalidates all outstanding refresh tokens for the
	// principal.
	ClearRefreshToken(ctx context.Context, kind Kind, id string) error
	// UpdatePasswordHash replaces the stored credential hash.
	UpdatePasswordHash(ctx context.Context, kind Kind, id, newHash string) error
}

// Clock is the injectable time source used wherever the engine compares
// wall-clock time.
type Clock func() time.Time

// RateLimitResult reports the outcome of one rate-limit take.
type RateLimitResult struct {
	Allowed   bool
	ResetTime time.Time
}

// LockoutStatus reports whether a principal is currently locked out.
type LockoutStatus struct {
	Locked      bool
	LockedUntil time.Time
}

// SecurityGuard is the abuse-control collaborator consumed by the engine.
// Implementations must fail closed: an unreachable backend denies.
type SecurityGuard interface {
	CheckRateLimit(ctx context.Context, kind Kind, identifier string) (RateLimitResult, error)
	CheckAccountLockout(ctx context.Context, kind Kind, principalID string) (LockoutStatus, error)
	RecordFailedAttempt(ctx context.Context, kind Kind, principalID string) (LockoutStatus, error)
	RecordSuccessfulAttempt(ctx context.Context, kind Kind, principalID string) error
	ValidatePasswordStrength(password string) []string
}
