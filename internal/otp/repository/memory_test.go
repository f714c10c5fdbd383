package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-session-engine/internal/otp/domain"
)

func TestMemorySpendAttempt_StopsAtBudget(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(ctx, &domain.Challenge{
		ID: "c-1", IdentityID: "id-1", Purpose: domain.PurposeEmailVerification,
		CodeHash: "h", ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	}))

	for want := 1; want <= 3; want++ {
		n, spent, err := r.SpendAttempt(ctx, "c-1", 3)
		require.NoError(t, err)
		assert.True(t, spent)
		assert.Equal(t, want, n)
	}
	_, spent, err := r.SpendAttempt(ctx, "c-1", 3)
	require.NoError(t, err)
	assert.False(t, spent)

	c, _ := r.Get("c-1")
	assert.Equal(t, 3, c.Attempts)

	ok, err := r.MarkUsed(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, spent, err = r.SpendAttempt(ctx, "c-1", 10)
	require.NoError(t, err)
	assert.False(t, spent, "used challenge must not accept attempts")
}
