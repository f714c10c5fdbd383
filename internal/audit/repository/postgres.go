package repository

import (
	"context"
	"fmt"

	"identity-session-engine/internal/audit/domain"
	"identity-session-engine/internal/db"
)

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit log repository backed by conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the entry. The entry must have ID set; empty identity and metadata are stored as NULL.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (id, identity_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, nullable(a.IdentityID), a.Action, a.Resource, a.IP, nullable(a.Metadata), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit create: %w", err)
	}
	return nil
}

// ListByIdentity returns the identity's entries, newest first.
func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, COALESCE(identity_id::text, ''), action, resource, ip, COALESCE(metadata, ''), created_at
		FROM audit_logs
		WHERE identity_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, identityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
