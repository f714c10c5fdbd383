package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"identity-session-engine/internal/autherr"
	"identity-session-engine/internal/db"
	"identity-session-engine/internal/identity/domain"
)

const identityColumns = `id, full_name, email, phone_number, national_id, password_hash, verified, status, created_at, updated_at`

// constraintFields maps unique constraint names to the identifier they protect.
var constraintFields = map[string]autherr.Field{
	"identities_email_key":        autherr.FieldEmail,
	"identities_phone_number_key": autherr.FieldPhone,
	"identities_national_id_key":  autherr.FieldNationalID,
}

// PostgresRepository stores identities in the identities table.
type PostgresRepository struct {
	db  db.DBTX
	now func() time.Time
}

// NewPostgresRepository returns an identity repository backed by conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn, now: time.Now}
}

// GetByID returns the identity for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// GetByEmail returns the identity with the normalized email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
}

// GetByPhone returns the identity with the E.164 phone number, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone_number = $1`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Identity, error) {
	var (
		i      domain.Identity
		status string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&i.ID, &i.FullName, &i.Email, &i.PhoneNumber, &i.NationalID,
		&i.PasswordHash, &i.Verified, &status, &i.CreatedAt, &i.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	i.Status = domain.Status(status)
	return &i, nil
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE email = $1)`, email)
}

func (r *PostgresRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE phone_number = $1)`, phone)
}

func (r *PostgresRepository) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE national_id = $1)`, nationalID)
}

func (r *PostgresRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("identity exists: %w", err)
	}
	return ok, nil
}

// Create inserts i. A unique violation is reported as *autherr.DuplicateIdentifierError
// naming the conflicting field, which covers two registrations racing past the
// existence checks.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, i.ID, i.FullName, i.Email, i.PhoneNumber, i.NationalID,
		i.PasswordHash, i.Verified, string(i.Status), i.CreatedAt, i.UpdatedAt)
	if name, ok := db.ConstraintViolated(err); ok {
		if field, known := constraintFields[name]; known {
			return &autherr.DuplicateIdentifierError{Field: field}
		}
	}
	if err != nil {
		return fmt.Errorf("identity create: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash, used for opportunistic rehashing.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, r.now().UTC())
	return err
}

// MarkVerified sets verified and moves a NEW identity to ACTIVE. Other statuses are kept,
// so a suspended identity stays suspended.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE identities
		SET verified = TRUE,
		    status = CASE WHEN status = 'NEW' THEN 'ACTIVE' ELSE status END,
		    updated_at = $2
		WHERE id = $1
	`, id, r.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return autherr.ErrIdentityNotFound
	}
	return nil
}

// Touch bumps updated_at.
func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET updated_at = $2 WHERE id = $1`, id, r.now().UTC())
	return err
}
