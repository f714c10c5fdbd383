package repository

import (
	"context"

	"identity-session-engine/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByIdentity(ctx context.Context, identityID string, limit, offset int32) ([]*domain.AuditLog, error)
}
