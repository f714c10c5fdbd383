// Package service implements refresh token issuance, single-use rotation and revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"identity-session-engine/internal/autherr"
	"identity-session-engine/internal/config"
	identitydomain "identity-session-engine/internal/identity/domain"
	"identity-session-engine/internal/security"
	"identity-session-engine/internal/session/domain"
	"identity-session-engine/internal/session/repository"
)

// TokenIssuer mints access tokens and opaque refresh secrets.
type TokenIssuer interface {
	IssueAccess(identityID, email, phone string, verified bool) (token, jti string, expiresAt time.Time, err error)
	IssueRefresh() (string, error)
}

// IdentityLookup loads the identity that owns a refresh token.
type IdentityLookup interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
}

// AdmissionPolicy decides whether an identity may hold a session.
type AdmissionPolicy interface {
	Allows(ctx context.Context, i *identitydomain.Identity) (bool, error)
}

// Pair is a freshly issued access token and refresh secret.
type Pair struct {
	AccessToken      string
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Identity         *identitydomain.Identity
}

// RotationManager issues sessions and rotates refresh tokens. It keeps no in-process state;
// the single-use guarantee comes from the repository's conditional claim.
type RotationManager struct {
	repo       repository.Repository
	identities IdentityLookup
	tokens     TokenIssuer
	admission  AdmissionPolicy
	settings   config.Engine
	now        func() time.Time
	log        *slog.Logger
}

// Option configures a RotationManager.
type Option func(*RotationManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *RotationManager) { m.now = now }
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *RotationManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithAdmission sets the policy consulted before a rotated session is issued. Without one,
// SUSPENDED and BANNED identities are refused.
func WithAdmission(p AdmissionPolicy) Option {
	return func(m *RotationManager) { m.admission = p }
}

// NewRotationManager returns a RotationManager.
func NewRotationManager(repo repository.Repository, identities IdentityLookup, tokens TokenIssuer, settings config.Engine, opts ...Option) *RotationManager {
	m := &RotationManager{
		repo:       repo,
		identities: identities,
		tokens:     tokens,
		settings:   settings,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Login starts a new session lineage for an already authenticated identity. When single
// session lineage is enabled every earlier refresh token of the identity is revoked first.
func (m *RotationManager) Login(ctx context.Context, identity *identitydomain.Identity) (*Pair, error) {
	if identity == nil || identity.ID == "" {
		return nil, autherr.Invalid("identity", "is required")
	}
	if m.settings.SingleSessionLineage {
		n, err := m.repo.RevokeAllByIdentity(ctx, identity.ID, m.now().UTC())
		if err != nil {
			return nil, err
		}
		if n > 0 {
			m.log.Debug("revoked prior refresh tokens", "op", "login", "identity_id", identity.ID, "count", n)
		}
	}
	return m.issue(ctx, identity)
}

// Rotate exchanges a presented refresh secret for a new pair. The presented secret is
// consumed even when issuing the replacement fails.
func (m *RotationManager) Rotate(ctx context.Context, presented string) (*Pair, error) {
	if presented == "" {
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshNotFound}
	}
	hash := security.HashRefreshToken(presented)
	now := m.now().UTC()

	current, err := m.repo.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	switch {
	case current == nil:
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshNotFound}
	case current.Revoked:
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshRevoked}
	case current.Expired(now):
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshExpired}
	}

	claimed, err := m.repo.ClaimForRotation(ctx, hash, now)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		// The claim uses the same instant as the expiry check above, so only a concurrent
		// rotation or revocation can make it miss.
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshRevoked}
	}

	// The old token is revoked from here on. Caller cancellation must not stop the
	// replacement from being written or leave the lineage half issued.
	ctx = context.WithoutCancel(ctx)

	identity, err := m.identities.GetByID(ctx, claimed.IdentityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, &autherr.RefreshRejectedError{Reason: autherr.RefreshNotFound}
	}
	if err := m.admit(ctx, identity); err != nil {
		return nil, err
	}
	return m.issue(ctx, identity)
}

// RevokeAllForIdentity revokes every active refresh token of the identity. Safe to repeat.
func (m *RotationManager) RevokeAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	if identityID == "" {
		return 0, autherr.Invalid("identity_id", "is required")
	}
	return m.repo.RevokeAllByIdentity(ctx, identityID, m.now().UTC())
}

func (m *RotationManager) admit(ctx context.Context, identity *identitydomain.Identity) error {
	if m.admission == nil {
		if identity.Status.Blocked() {
			return autherr.ErrAccountBlocked
		}
		return nil
	}
	ok, err := m.admission.Allows(ctx, identity)
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}
	if !ok {
		return autherr.ErrAccountBlocked
	}
	return nil
}

func (m *RotationManager) issue(ctx context.Context, identity *identitydomain.Identity) (*Pair, error) {
	access, jti, accessExp, err := m.tokens.IssueAccess(identity.ID, identity.Email, identity.PhoneNumber, identity.Verified)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	secret, err := m.tokens.IssueRefresh()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	now := m.now().UTC()
	rt := &domain.RefreshToken{
		ID:         uuid.NewString(),
		IdentityID: identity.ID,
		TokenHash:  security.HashRefreshToken(secret),
		ExpiresAt:  now.Add(m.settings.RefreshTokenTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.repo.Create(ctx, rt); err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		AccessJTI:        jti,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: rt.ExpiresAt,
		Identity:         identity,
	}, nil
}

// RejectionReason extracts the internal refresh rejection reason from err, if any.
func RejectionReason(err error) (autherr.RefreshReason, bool) {
	var rr *autherr.RefreshRejectedError
	if errors.As(err, &rr) {
		return rr.Reason, true
	}
	return "", false
}
