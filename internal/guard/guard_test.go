package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"sptm.org/internal/auth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard() (*Guard, *fakeClock) {
	clock := newFakeClock()
	return New(NewMemoryStore(), WithClock(clock.Now)), clock
}

func TestRateLimitWindowBoundary(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindUser)

	for i := 0; i < policy.RateMaxAttempts; i++ {
		res, err := g.CheckRateLimit(ctx, auth.KindUser, "203.0.113.9")
		if err != nil {
			t.Fatalf("CheckRateLimit: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d within budget should be allowed", i+1)
		}
	}

	res, err := g.CheckRateLimit(ctx, auth.KindUser, "203.0.113.9")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if res.Allowed {
		t.Fatalf("attempt %d must be denied", policy.RateMaxAttempts+1)
	}
	if !res.ResetTime.After(g.Now().Add(-time.Second)) {
		t.Fatalf("resetTime should be in the future, got %v", res.ResetTime)
	}

	// A different identifier is unaffected.
	if res, _ := g.CheckRateLimit(ctx, auth.KindUser, "203.0.113.10"); !res.Allowed {
		t.Fatal("other identifiers must not share the window")
	}
}

func TestRateLimitBlockOutlastsWindow(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindOrganization)

	for i := 0; i <= policy.RateMaxAttempts; i++ {
		_, _ = g.CheckRateLimit(ctx, auth.KindOrganization, "ip-1")
	}

	// The window has elapsed but the block has not.
	clock.Advance(policy.RateWindow + time.Minute)
	res, _ := g.CheckRateLimit(ctx, auth.KindOrganization, "ip-1")
	if res.Allowed {
		t.Fatal("block must outlast its originating window")
	}

	// After the block elapses the next request reopens the window.
	clock.Advance(policy.RateBlock)
	res, _ = g.CheckRateLimit(ctx, auth.KindOrganization, "ip-1")
	if !res.Allowed {
		t.Fatal("window should reset after the block elapses")
	}
}

func TestLockoutMonotonicity(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindAdmin)

	for i := 1; i <= policy.LockoutThreshold; i++ {
		// Interleave failures of a different principal.
		if _, err := g.RecordFailedAttempt(ctx, auth.KindAdmin, "other-admin"); err != nil {
			t.Fatalf("interleaved failure: %v", err)
		}
		status, err := g.RecordFailedAttempt(ctx, auth.KindAdmin, "adm-1")
		if err != nil {
			t.Fatalf("RecordFailedAttempt: %v", err)
		}
		locked := i == policy.LockoutThreshold
		if status.Locked != locked {
			t.Fatalf("failure %d: locked=%v, want %v", i, status.Locked, locked)
		}
	}

	status, err := g.CheckAccountLockout(ctx, auth.KindAdmin, "adm-1")
	if err != nil || !status.Locked {
		t.Fatalf("lockout should persist: %+v err=%v", status, err)
	}
	if status.LockedUntil.IsZero() {
		t.Fatal("lockedUntil missing")
	}
}

func TestResetOnSuccess(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindUser)

	for i := 0; i < policy.LockoutThreshold-1; i++ {
		if _, err := g.RecordFailedAttempt(ctx, auth.KindUser, "u-1"); err != nil {
			t.Fatalf("RecordFailedAttempt: %v", err)
		}
	}
	if err := g.RecordSuccessfulAttempt(ctx, auth.KindUser, "u-1"); err != nil {
		t.Fatalf("RecordSuccessfulAttempt: %v", err)
	}

	// The first new failure starts counting from zero again.
	status, err := g.RecordFailedAttempt(ctx, auth.KindUser, "u-1")
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if status.Locked {
		t.Fatal("success must reset the failure counter")
	}
}

func TestStaleFailuresDoNotAccumulate(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindUser)

	for i := 0; i < policy.LockoutThreshold-1; i++ {
		_, _ = g.RecordFailedAttempt(ctx, auth.KindUser, "u-2")
	}
	clock.Advance(policy.FailureResetWindow + time.Minute)

	status, err := g.RecordFailedAttempt(ctx, auth.KindUser, "u-2")
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if status.Locked {
		t.Fatal("failures older than the reset window must not count")
	}
}

func TestLockoutExpiresLazily(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindOrganization)

	for i := 0; i < policy.LockoutThreshold; i++ {
		_, _ = g.RecordFailedAttempt(ctx, auth.KindOrganization, "org-1")
	}
	if status, _ := g.CheckAccountLockout(ctx, auth.KindOrganization, "org-1"); !status.Locked {
		t.Fatal("expected lockout")
	}

	clock.Advance(policy.LockoutDuration + time.Minute)
	if status, _ := g.CheckAccountLockout(ctx, auth.KindOrganization, "org-1"); status.Locked {
		t.Fatal("expired lockout should clear on read")
	}
}

func TestConcurrentFailuresTriggerLockout(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()
	policy := PolicyFor(auth.KindUser)

	var wg sync.WaitGroup
	lockedCh := make(chan bool, policy.LockoutThreshold)
	for i := 0; i < policy.LockoutThreshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := g.RecordFailedAttempt(ctx, auth.KindUser, "u-race")
			if err != nil {
				t.Errorf("RecordFailedAttempt: %v", err)
				return
			}
			lockedCh <- status.Locked
		}()
	}
	wg.Wait()
	close(lockedCh)

	var locked int
	for l := range lockedCh {
		if l {
			locked++
		}
	}
	// No failure may be lost: with exactly threshold concurrent failures the
	// lockout must trigger.
	if locked == 0 {
		t.Fatal("concurrent failures lost, lockout never triggered")
	}
	if status, _ := g.CheckAccountLockout(ctx, auth.KindUser, "u-race"); !status.Locked {
		t.Fatal("lockout must be observable after the race")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	g, _ := newTestGuard()

	if violations := g.ValidatePasswordStrength("Str0ng!pass"); len(violations) != 0 {
		t.Fatalf("expected valid password, got %v", violations)
	}

	violations := g.ValidatePasswordStrength("weak")
	if len(violations) != 4 {
		// short, no upper, no digit, no special
		t.Fatalf("expected 4 violations, got %d: %v", len(violations), violations)
	}

	violations = g.ValidatePasswordStrength("alllowercase1!")
	if len(violations) != 1 {
		t.Fatalf("expected only the uppercase rule, got %v", violations)
	}
}
