package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-binary
// deployments. It provides the same compare-and-swap rotation semantics as
// the Postgres store, guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Kind]map[string]*PrincipalRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Kind]map[string]*PrincipalRecord)}
}

// Put inserts or replaces a record. Intended for seeding and tests.
func (s *MemoryStore) Put(rec PrincipalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[rec.Kind]
	if !ok {
		byID = make(map[string]*PrincipalRecord)
		s.records[rec.Kind] = byID
	}
	clone := rec
	byID[rec.ID] = &clone
}

func (s *MemoryStore) FindByID(_ context.Context, kind Kind, id string) (*PrincipalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, kind Kind, email string) (*PrincipalRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records[kind] {
		if strings.ToLower(rec.Email) == email {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateLastLoginAndRefreshToken(_ context.Context, kind Kind, id, refreshHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return ErrNotFound
	}
	rec.RefreshTokenHash = refreshHash
	rec.LastLoginAt = at
	rec.UpdatedAt = at
	return nil
}

func (s *MemoryStore) SwapRefreshToken(_ context.Context, kind Kind, id, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.RefreshTokenHash != oldHash {
		return false, nil
	}
	rec.RefreshTokenHash = newHash
	return true, nil
}

func (s *MemoryStore) ClearRefreshToken(_ context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return ErrNotFound
	}
	rec.RefreshTokenHash = ""
	return nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, kind Kind, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return ErrNotFound
	}
	rec.PasswordHash = newHash
	return nil
}
