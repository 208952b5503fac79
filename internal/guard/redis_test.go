package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sptm.org/internal/auth"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb), mr
}

func TestRedisRateLimitWindow(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	// Admin-tier tuning keeps the block longer than the counting window, which
	// is the interesting transition to exercise here.
	policy := PolicyFor(auth.KindSuperAdmin)
	now := time.Now()

	for i := 0; i < policy.RateMaxAttempts; i++ {
		res, err := store.TakeRateLimit(ctx, "superadmin:ip-9", policy, now)
		if err != nil {
			t.Fatalf("TakeRateLimit: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	res, err := store.TakeRateLimit(ctx, "superadmin:ip-9", policy, now)
	if err != nil {
		t.Fatalf("TakeRateLimit: %v", err)
	}
	if res.Allowed {
		t.Fatal("over-budget attempt must be denied")
	}
	if !res.ResetTime.After(now) {
		t.Fatalf("resetTime should be in the future: %v", res.ResetTime)
	}

	// Block persists even after the counting window expires.
	mr.FastForward(policy.RateWindow + time.Minute)
	if res, _ := store.TakeRateLimit(ctx, "superadmin:ip-9", policy, now); res.Allowed {
		t.Fatal("block must outlast the window")
	}

	mr.FastForward(policy.RateBlock)
	if res, _ := store.TakeRateLimit(ctx, "superadmin:ip-9", policy, now); !res.Allowed {
		t.Fatal("expired block should reopen the window")
	}
}

func TestRedisLockoutLifecycle(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	policy := PolicyFor(auth.KindOrganization)
	now := time.Now()

	for i := 1; i < policy.LockoutThreshold; i++ {
		status, err := store.RecordFailure(ctx, "organization:org-7", policy, now)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if status.Locked {
			t.Fatalf("failure %d below threshold should not lock", i)
		}
	}

	status, err := store.RecordFailure(ctx, "organization:org-7", policy, now)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !status.Locked {
		t.Fatal("threshold failure must lock")
	}

	if status, _ := store.LockoutStatus(ctx, "organization:org-7", now); !status.Locked {
		t.Fatal("lockout should be visible")
	}

	mr.FastForward(policy.LockoutDuration + time.Second)
	if status, _ := store.LockoutStatus(ctx, "organization:org-7", now); status.Locked {
		t.Fatal("lockout should expire with its TTL")
	}
}

func TestRedisClearLockout(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	policy := PolicyFor(auth.KindUser)
	now := time.Now()

	for i := 0; i < policy.LockoutThreshold-1; i++ {
		_, _ = store.RecordFailure(ctx, "user:u-5", policy, now)
	}
	if err := store.ClearLockout(ctx, "user:u-5"); err != nil {
		t.Fatalf("ClearLockout: %v", err)
	}
	status, err := store.RecordFailure(ctx, "user:u-5", policy, now)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if status.Locked {
		t.Fatal("cleared counter must start from zero")
	}
}

func TestRedisFailClosed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb)
	mr.Close()

	g := New(store)
	res, err := g.CheckRateLimit(context.Background(), auth.KindUser, "ip-1")
	if err == nil {
		t.Fatal("expected backend error")
	}
	if res.Allowed {
		t.Fatal("unreachable store must deny")
	}
	status, err := g.CheckAccountLockout(context.Background(), auth.KindUser, "u-1")
	if err == nil || !status.Locked {
		t.Fatal("unreachable store must report locked")
	}
}
