package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"identity-session-engine/internal/db"
	"identity-session-engine/internal/otp/domain"
)

const challengeColumns = `id, identity_id, purpose, code_hash, used, attempts, expires_at, created_at`

// PostgresRepository stores challenges in the otp_challenges table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an OTP challenge repository backed by conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO otp_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.IdentityID, string(c.Purpose), c.CodeHash, c.Used, c.Attempts, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("otp create: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context, identityID string, purpose domain.Purpose, now time.Time) (*domain.Challenge, error) {
	var (
		c       domain.Challenge
		purpStr string
	)
	err := r.db.QueryRow(ctx, `
		SELECT `+challengeColumns+`
		FROM otp_challenges
		WHERE identity_id = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, identityID, string(purpose), now).Scan(
		&c.ID, &c.IdentityID, &purpStr, &c.CodeHash, &c.Used, &c.Attempts, &c.ExpiresAt, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("otp lookup: %w", err)
	}
	c.Purpose = domain.Purpose(purpStr)
	return &c, nil
}

func (r *PostgresRepository) InvalidateActive(ctx context.Context, identityID string, purpose domain.Purpose) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE otp_challenges SET used = TRUE
		WHERE identity_id = $1 AND purpose = $2 AND used = FALSE
	`, identityID, string(purpose))
	if err != nil {
		return 0, fmt.Errorf("otp invalidate: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) SpendAttempt(ctx context.Context, id string, max int) (int, bool, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE otp_challenges SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE AND attempts < $2
		RETURNING attempts
	`, id, max).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("otp spend attempt: %w", err)
	}
	return attempts, true, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE otp_challenges SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("otp mark used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("otp sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}
