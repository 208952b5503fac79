package guard

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"sptm.org/internal/auth"
)

const shardCount = 32

type rateRecord struct {
	count        int
	windowReset  time.Time
	blockedUntil time.Time
}

type lockoutRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

type shard struct {
	mu       sync.Mutex
	rates    map[string]*rateRecord
	lockouts map[string]*lockoutRecord
}

// MemoryStore is a mutex-sharded in-process Store. Per-key updates are
// linearizable because every key maps to exactly one shard lock.
type MemoryStore struct {
	shards [shardCount]*shard
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{
			rates:    make(map[string]*rateRecord),
			lockouts: make(map[string]*lockoutRecord),
		}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) TakeRateLimit(_ context.Context, key string, p Policy, now time.Time) (auth.RateLimitResult, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.rates[key]
	if ok && !rec.blockedUntil.IsZero() {
		if now.Before(rec.blockedUntil) {
			return auth.RateLimitResult{Allowed: false, ResetTime: rec.blockedUntil}, nil
		}
		// Block elapsed: the window resets on this request.
		ok = false
	}
	if !ok || now.After(rec.windowReset) {
		sh.rates[key] = &rateRecord{count: 1, windowReset: now.Add(p.RateWindow)}
		return auth.RateLimitResult{Allowed: true}, nil
	}

	rec.count++
	if rec.count > p.RateMaxAttempts {
		rec.blockedUntil = now.Add(p.RateBlock)
		return auth.RateLimitResult{Allowed: false, ResetTime: rec.blockedUntil}, nil
	}
	return auth.RateLimitResult{Allowed: true}, nil
}

func (s *MemoryStore) LockoutStatus(_ context.Context, key string, now time.Time) (auth.LockoutStatus, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.lockouts[key]
	if !ok {
		return auth.LockoutStatus{}, nil
	}
	if !rec.lockedUntil.IsZero() {
		if now.Before(rec.lockedUntil) {
			return auth.LockoutStatus{Locked: true, LockedUntil: rec.lockedUntil}, nil
		}
		// Expired lockouts are cleared on read.
		delete(sh.lockouts, key)
	}
	return auth.LockoutStatus{}, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, key string, p Policy, now time.Time) (auth.LockoutStatus, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.lockouts[key]
	if !ok {
		rec = &lockoutRecord{}
		sh.lockouts[key] = rec
	}
	if !rec.lockedUntil.IsZero() && now.Before(rec.lockedUntil) {
		return auth.LockoutStatus{Locked: true, LockedUntil: rec.lockedUntil}, nil
	}
	if rec.failures > 0 && now.Sub(rec.lastFailure) > p.FailureResetWindow {
		rec.failures = 0
	}
	rec.failures++
	rec.lastFailure = now
	if rec.failures >= p.LockoutThreshold {
		rec.lockedUntil = now.Add(p.LockoutDuration)
		return auth.LockoutStatus{Locked: true, LockedUntil: rec.lockedUntil}, nil
	}
	return auth.LockoutStatus{}, nil
}

func (s *MemoryStore) ClearLockout(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.lockouts, key)
	return nil
}
