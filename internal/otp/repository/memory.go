package repository

import (
	"context"
	"sync"
	"time"

	"identity-session-engine/internal/otp/domain"
)

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Challenge)}
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byID[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetActive(_ context.Context, identityID string, purpose domain.Purpose, now time.Time) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Challenge
	for _, c := range r.byID {
		if c.IdentityID != identityID || c.Purpose != purpose || !c.Active(now) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) || (c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *MemoryRepository) InvalidateActive(_ context.Context, identityID string, purpose domain.Purpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.byID {
		if c.IdentityID == identityID && c.Purpose == purpose && !c.Used {
			c.Used = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) SpendAttempt(_ context.Context, id string, max int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.Used || c.Attempts >= max {
		return 0, false, nil
	}
	c.Attempts++
	return c.Attempts, true, nil
}

func (r *MemoryRepository) MarkUsed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (r *MemoryRepository) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.byID {
		if c.ExpiresAt.Before(before) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the challenge with id, for assertions.
func (r *MemoryRepository) Get(id string) (domain.Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Challenge{}, false
	}
	return *c, true
}

// Count returns how many challenges exist for the pair, used or not.
func (r *MemoryRepository) Count(identityID string, purpose domain.Purpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.byID {
		if c.IdentityID == identityID && c.Purpose == purpose {
			n++
		}
	}
	return n
}
