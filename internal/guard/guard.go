// Package guard throttles and locks out abusive credentials and emits the
// security audit trail. Rate limiting is keyed by (kind, client identifier);
// lockout by (kind, principal id). Both fail closed when the backing store is
// unreachable.
package guard

import (
	"context"
	"time"
	"unicode"

	"sptm.org/internal/audit"
	"sptm.org/internal/auth"
	"sptm.org/internal/obs"
)

// Guard is the security guard facade used by the authorization engine.
type Guard struct {
	store Store
	sink  audit.Sink
	now   auth.Clock
}

// Option configures Guard behavior.
type Option func(*Guard)

// WithClock overrides the time source (useful for tests).
func WithClock(now auth.Clock) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSink overrides the security-event sink.
func WithSink(sink audit.Sink) Option {
	return func(g *Guard) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// New constructs a Guard over the given state store.
func New(store Store, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		sink:  audit.JSONSink{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func guardKey(kind auth.Kind, identifier string) string {
	return string(kind) + ":" + identifier
}

// CheckRateLimit advances the fixed window for (kind, identifier) and reports
// whether the request is allowed. A store failure denies the request.
func (g *Guard) CheckRateLimit(ctx context.Context, kind auth.Kind, identifier string) (auth.RateLimitResult, error) {
	res, err := g.store.TakeRateLimit(ctx, guardKey(kind, identifier), PolicyFor(kind), g.now())
	if err != nil {
		return auth.RateLimitResult{Allowed: false}, err
	}
	if !res.Allowed {
		obs.ObserveRateLimited(string(kind))
	}
	return res, nil
}

// CheckAccountLockout is a read-only lockout check; expired lockouts are
// cleared lazily by the store. A store failure reports locked.
func (g *Guard) CheckAccountLockout(ctx context.Context, kind auth.Kind, principalID string) (auth.LockoutStatus, error) {
	status, err := g.store.LockoutStatus(ctx, guardKey(kind, principalID), g.now())
	if err != nil {
		return auth.LockoutStatus{Locked: true}, err
	}
	return status, nil
}

// RecordFailedAttempt counts one failed authentication. Reaching the
// threshold arms the lockout and reports it.
func (g *Guard) RecordFailedAttempt(ctx context.Context, kind auth.Kind, principalID string) (auth.LockoutStatus, error) {
	status, err := g.store.RecordFailure(ctx, guardKey(kind, principalID), PolicyFor(kind), g.now())
	if err != nil {
		return auth.LockoutStatus{Locked: true}, err
	}
	if status.Locked {
		obs.ObserveLockout(string(kind))
	}
	return status, nil
}

// RecordSuccessfulAttempt unconditionally deletes the failure record.
func (g *Guard) RecordSuccessfulAttempt(ctx context.Context, kind auth.Kind, principalID string) error {
	return g.store.ClearLockout(ctx, guardKey(kind, principalID))
}

const minPasswordLength = 8

// ValidatePasswordStrength returns every violated rule, not just the first.
// An empty result means the password is acceptable.
func (g *Guard) ValidatePasswordStrength(password string) []string {
	var violations []string
	if len(password) < minPasswordLength {
		violations = append(violations, "must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain a special character")
	}
	return violations
}

// LogSecurityEvent appends to the audit trail. Best effort: a sink failure
// never fails the surrounding authentication flow.
func (g *Guard) LogSecurityEvent(ctx context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = g.now()
	}
	_ = g.sink.Append(ctx, event)
}

// Now exposes the guard's clock so callers can stamp events consistently.
func (g *Guard) Now() time.Time {
	return g.now()
}
