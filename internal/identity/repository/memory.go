package repository

import (
	"context"
	"sync"
	"time"

	"identity-session-engine/internal/autherr"
	"identity-session-engine/internal/identity/domain"
)

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

// MemoryRepository is an in-process Repository used by tests and local tooling. It enforces
// the same uniqueness rules as the identities table.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Identity
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.ID == id }), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.Email == email }), nil
}

func (r *MemoryRepository) GetByPhone(_ context.Context, phone string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.PhoneNumber == phone }), nil
}

func (r *MemoryRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	i, _ := r.GetByEmail(ctx, email)
	return i != nil, nil
}

func (r *MemoryRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	i, _ := r.GetByPhone(ctx, phone)
	return i != nil, nil
}

func (r *MemoryRepository) ExistsByNationalID(_ context.Context, nationalID string) (bool, error) {
	return r.find(func(i *domain.Identity) bool { return i.NationalID == nationalID }) != nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		switch {
		case e.Email == i.Email:
			return &autherr.DuplicateIdentifierError{Field: autherr.FieldEmail}
		case e.PhoneNumber == i.PhoneNumber:
			return &autherr.DuplicateIdentifierError{Field: autherr.FieldPhone}
		case e.NationalID == i.NationalID:
			return &autherr.DuplicateIdentifierError{Field: autherr.FieldNationalID}
		}
	}
	cp := *i
	r.byID[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(i *domain.Identity) { i.PasswordHash = passwordHash })
}

func (r *MemoryRepository) MarkVerified(_ context.Context, id string) error {
	return r.update(id, func(i *domain.Identity) {
		i.Verified = true
		if i.Status == domain.StatusNew {
			i.Status = domain.StatusActive
		}
	})
}

func (r *MemoryRepository) Touch(_ context.Context, id string) error {
	return r.update(id, func(*domain.Identity) {})
}

// SetStatus changes the status directly, as an operator would.
func (r *MemoryRepository) SetStatus(id string, s domain.Status) error {
	return r.update(id, func(i *domain.Identity) { i.Status = s })
}

func (r *MemoryRepository) find(match func(*domain.Identity) bool) *domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.byID {
		if match(i) {
			cp := *i
			return &cp
		}
	}
	return nil
}

func (r *MemoryRepository) update(id string, fn func(*domain.Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return autherr.ErrIdentityNotFound
	}
	fn(i)
	i.UpdatedAt = time.Now().UTC()
	return nil
}
