package repository

import (
	"context"
	"sync"
	"time"

	"identity-session-engine/internal/session/domain"
)

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
// The mutex makes ClaimForRotation atomic in the same way the conditional UPDATE is.
type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*domain.RefreshToken
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]*domain.RefreshToken)}
}

func (r *MemoryRepository) Create(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.byHash[t.TokenHash] = &cp
	return nil
}

func (r *MemoryRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) ClaimForRotation(_ context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok || t.Revoked || !now.Before(t.ExpiresAt) {
		return nil, nil
	}
	t.Revoked = true
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) RevokeAllByIdentity(_ context.Context, identityID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.byHash {
		if t.IdentityID == identityID && !t.Revoked {
			t.Revoked = true
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, t := range r.byHash {
		if t.ExpiresAt.Before(before) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

// ActiveCount returns how many tokens of the identity are valid at now.
func (r *MemoryRepository) ActiveCount(identityID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.byHash {
		if t.IdentityID == identityID && t.Valid(now) {
			n++
		}
	}
	return n
}
