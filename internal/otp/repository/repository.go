package repository

import (
	"context"
	"time"

	"identity-session-engine/internal/otp/domain"
)

// Repository defines persistence for OTP challenges.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// GetActive returns the newest unused, unexpired challenge for the pair, or nil.
	// Ties on created_at are broken by id so the choice is deterministic.
	GetActive(ctx context.Context, identityID string, purpose domain.Purpose, now time.Time) (*domain.Challenge, error)
	// InvalidateActive marks every unused challenge for the pair as used.
	InvalidateActive(ctx context.Context, identityID string, purpose domain.Purpose) (int64, error)
	// SpendAttempt increments attempts on an unused challenge whose count is still below
	// max and returns the new count. spent is false when the challenge is used or its
	// budget is gone; the check and the increment are one atomic step.
	SpendAttempt(ctx context.Context, id string, max int) (attempts int, spent bool, err error)
	// MarkUsed sets used on an unused challenge. It reports false when the challenge was
	// already used, so a double submit cannot succeed twice.
	MarkUsed(ctx context.Context, id string) (bool, error)
	// DeleteStale removes challenges that expired before the cutoff.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
