package repository

import (
	"context"
	"time"

	"identity-session-engine/internal/session/domain"
)

// Repository defines persistence for refresh tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	// GetByTokenHash returns the token with the digest, or nil if none.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// ClaimForRotation revokes the token in one statement if it is still unrevoked and
	// unexpired at now, and returns it. It returns nil when another caller claimed it first
	// or it is no longer valid.
	ClaimForRotation(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
	// RevokeAllByIdentity revokes every unrevoked token of the identity and returns how many
	// rows changed.
	RevokeAllByIdentity(ctx context.Context, identityID string, now time.Time) (int64, error)
	// DeleteExpired removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
