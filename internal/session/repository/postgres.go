package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"identity-session-engine/internal/db"
	"identity-session-engine/internal/session/domain"
)

const tokenColumns = `id, identity_id, token_hash, expires_at, revoked, created_at, updated_at`

// PostgresRepository stores refresh tokens in the refresh_tokens table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a refresh token repository backed by conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create inserts t.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.IdentityID, t.TokenHash, t.ExpiresAt, t.Revoked, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("refresh token create: %w", err)
	}
	return nil
}

// GetByTokenHash returns the token with the digest, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return scanToken(row)
}

// ClaimForRotation is the single-use guard: the conditional UPDATE succeeds for exactly
// one concurrent caller.
func (r *PostgresRepository) ClaimForRotation(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = $2
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING `+tokenColumns, tokenHash, now)
	return scanToken(row)
}

// RevokeAllByIdentity is idempotent: already revoked rows are left untouched.
func (r *PostgresRepository) RevokeAllByIdentity(ctx context.Context, identityID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = $2
		WHERE identity_id = $1 AND revoked = FALSE
	`, identityID, now)
	if err != nil {
		return 0, fmt.Errorf("refresh token revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes rows whose expiry is before the cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("refresh token sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.IdentityID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}
	return &t, nil
}
