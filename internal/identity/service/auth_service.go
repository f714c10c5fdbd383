// Package service composes credential checks, session rotation and verification codes into
// the register, login, refresh and verify flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"identity-session-engine/internal/audit"
	auditdomain "identity-session-engine/internal/audit/domain"
	"identity-session-engine/internal/autherr"
	"identity-session-engine/internal/config"
	"identity-session-engine/internal/identity/domain"
	"identity-session-engine/internal/identity/repository"
	"identity-session-engine/internal/notification"
	otpdomain "identity-session-engine/internal/otp/domain"
	otpservice "identity-session-engine/internal/otp/service"
	sessionservice "identity-session-engine/internal/session/service"
	"identity-session-engine/internal/telemetry"
)

// TokenTypeBearer is the token_type of every session bundle.
const TokenTypeBearer = "Bearer"

// displayExpiryFallback is used for ExpiresAt when the access token carries no exp.
const displayExpiryFallback = 2 * time.Hour

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Verify(hash string, password []byte) (bool, error)
	NeedsRehash(hash string) bool
	EqualizeTiming(password []byte)
}

// Sessions issues and rotates refresh token lineages.
type Sessions interface {
	Login(ctx context.Context, identity *domain.Identity) (*sessionservice.Pair, error)
	Rotate(ctx context.Context, presented string) (*sessionservice.Pair, error)
	RevokeAllForIdentity(ctx context.Context, identityID string) (int64, error)
}

// Challenges issues and verifies one-time codes.
type Challenges interface {
	Issue(ctx context.Context, identityID string, purpose otpdomain.Purpose) (*otpservice.Issued, error)
	Verify(ctx context.Context, identityID string, purpose otpdomain.Purpose, code string) error
}

// TokenInspector reads the expiry of an issued access token.
type TokenInspector interface {
	ExpiryOf(token string) (time.Time, bool)
}

// RegisterInput is the raw registration request.
type RegisterInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	NationalID  string
	Password    string
}

// Session is the bundle returned by register, login and refresh.
type Session struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	TokenType    string         `json:"token_type"`
	Identity     domain.Summary `json:"user"`
}

// CodeSent describes a delivered verification code without revealing it.
type CodeSent struct {
	Destination     string    `json:"destination"`
	Channel         string    `json:"channel"`
	ExpiresAt       time.Time `json:"expires_at"`
	CooldownSeconds int       `json:"cooldown_seconds"`
}

// AuthService runs the auth flows. It holds no mutable state of its own.
type AuthService struct {
	identities repository.Repository
	hasher     PasswordHasher
	sessions   Sessions
	challenges Challenges
	notifier   notification.Notifier
	tokens     TokenInspector
	admission  sessionservice.AdmissionPolicy
	audit      audit.AuditLogger
	events     telemetry.EventEmitter
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	settings   config.Engine
	now        func() time.Time
	log        *slog.Logger
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAdmission sets the policy consulted after a successful password check. Without one,
// SUSPENDED and BANNED identities are refused.
func WithAdmission(p sessionservice.AdmissionPolicy) Option {
	return func(s *AuthService) { s.admission = p }
}

// WithAudit records auth events to the audit log.
func WithAudit(a audit.AuditLogger) Option {
	return func(s *AuthService) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithEvents emits auth events asynchronously.
func WithEvents(e telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.events = e }
}

// WithMetrics counts outcomes per flow.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService returns an AuthService.
func NewAuthService(
	identities repository.Repository,
	hasher PasswordHasher,
	sessions Sessions,
	challenges Challenges,
	notifier notification.Notifier,
	tokens TokenInspector,
	settings config.Engine,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		identities: identities,
		hasher:     hasher,
		sessions:   sessions,
		challenges: challenges,
		notifier:   notifier,
		tokens:     tokens,
		audit:      audit.Nop{},
		tracer:     otel.Tracer("identity-session-engine/auth"),
		settings:   settings,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register validates and creates a NEW, unverified identity and opens its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (sess *Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	identity, err := s.buildIdentity(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, identity); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	identity.PasswordHash = hash
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("identity_id", identity.ID))
	s.log.Info("identity registered", "op", "register", "identity_id", identity.ID)
	s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionRegister, auditdomain.ResourceIdentity, "")
	s.emit(ctx, telemetry.EventRegistered, identity.ID)

	pair, err := s.sessions.Login(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.bundle(pair), nil
}

func (s *AuthService) buildIdentity(in RegisterInput) (*domain.Identity, error) {
	name, err := domain.NormalizeFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	email, err := domain.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := domain.NormalizePhone(in.PhoneNumber, s.settings.PhoneDefaultRegion)
	if err != nil {
		return nil, err
	}
	nationalID, err := domain.NormalizeNationalID(in.NationalID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &domain.Identity{
		ID:          uuid.NewString(),
		FullName:    name,
		Email:       email,
		PhoneNumber: phone,
		NationalID:  nationalID,
		Status:      domain.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// checkUnique reports the first taken identifier in email, phone, national ID order. The
// unique constraints still decide a concurrent race at insert time.
func (s *AuthService) checkUnique(ctx context.Context, i *domain.Identity) error {
	checks := []struct {
		field  autherr.Field
		exists func(context.Context, string) (bool, error)
		value  string
	}{
		{autherr.FieldEmail, s.identities.ExistsByEmail, i.Email},
		{autherr.FieldPhone, s.identities.ExistsByPhone, i.PhoneNumber},
		{autherr.FieldNationalID, s.identities.ExistsByNationalID, i.NationalID},
	}
	for _, c := range checks {
		taken, err := c.exists(ctx, c.value)
		if err != nil {
			return err
		}
		if taken {
			return &autherr.DuplicateIdentifierError{Field: c.field}
		}
	}
	return nil
}

// Login authenticates by email or phone number. Unknown identifiers and wrong passwords
// both return ErrInvalidCredentials after comparable bcrypt work.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (sess *Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	identity, err := s.lookupForLogin(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		s.hasher.EqualizeTiming([]byte(password))
		return nil, s.loginFailed(ctx, "", "unknown_identifier")
	}
	ok, err := s.hasher.Verify(identity.PasswordHash, []byte(password))
	if err != nil && !errors.Is(err, autherr.ErrMalformedInput) {
		return nil, err
	}
	if !ok {
		return nil, s.loginFailed(ctx, identity.ID, "wrong_password")
	}
	if err := s.admit(ctx, identity); err != nil {
		if errors.Is(err, autherr.ErrAccountBlocked) {
			s.metrics.Login(ctx, "blocked")
			s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionLoginFailure, auditdomain.ResourceSession, audit.Metadata("reason", "blocked"))
		}
		return nil, err
	}

	s.maybeRehash(ctx, identity, password)
	if err := s.identities.Touch(ctx, identity.ID); err != nil {
		s.log.Warn("touch identity failed", "op", "login", "identity_id", identity.ID, "error", err)
	}

	pair, err := s.sessions.Login(ctx, identity)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("identity_id", identity.ID))
	s.metrics.Login(ctx, "success")
	s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionLoginSuccess, auditdomain.ResourceSession, "")
	s.emit(ctx, telemetry.EventLoginSucceeded, identity.ID)
	return s.bundle(pair), nil
}

func (s *AuthService) lookupForLogin(ctx context.Context, identifier string) (*domain.Identity, error) {
	id, err := domain.ParseLoginIdentifier(identifier, s.settings.PhoneDefaultRegion)
	if err != nil {
		// A malformed identifier cannot match any account.
		return nil, nil
	}
	if id.Kind == domain.IdentifierEmail {
		return s.identities.GetByEmail(ctx, id.Value)
	}
	return s.identities.GetByPhone(ctx, id.Value)
}

func (s *AuthService) loginFailed(ctx context.Context, identityID, reason string) error {
	s.log.Info("login rejected", "op", "login", "identity_id", identityID, "reason", reason)
	s.metrics.Login(ctx, "invalid_credentials")
	s.audit.LogEvent(ctx, identityID, auditdomain.ActionLoginFailure, auditdomain.ResourceSession, audit.Metadata("reason", reason))
	s.emit(ctx, telemetry.EventLoginFailed, identityID, "reason", reason)
	return autherr.ErrInvalidCredentials
}

func (s *AuthService) admit(ctx context.Context, identity *domain.Identity) error {
	if s.admission == nil {
		if identity.Status.Blocked() {
			return autherr.ErrAccountBlocked
		}
		return nil
	}
	ok, err := s.admission.Allows(ctx, identity)
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}
	if !ok {
		return autherr.ErrAccountBlocked
	}
	return nil
}

// maybeRehash upgrades a hash produced with an outdated cost. Failure is logged only.
func (s *AuthService) maybeRehash(ctx context.Context, identity *domain.Identity, password string) {
	if !s.hasher.NeedsRehash(identity.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err == nil {
		err = s.identities.UpdatePasswordHash(ctx, identity.ID, hash)
	}
	if err != nil {
		s.log.Warn("password rehash failed", "op", "login", "identity_id", identity.ID, "error", err)
		return
	}
	identity.PasswordHash = hash
}

// Refresh rotates a refresh token. The rejection reason is logged and audited; callers
// should expose only a generic unauthorized result.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (sess *Session, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Refresh")
	defer func() { endSpan(span, err) }()

	pair, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		if reason, ok := sessionservice.RejectionReason(err); ok {
			s.log.Warn("refresh rejected", "op", "refresh", "reason", string(reason))
			s.metrics.Rotation(ctx, string(reason))
			s.audit.LogEvent(ctx, "", auditdomain.ActionRefreshRejected, auditdomain.ResourceSession, audit.Metadata("reason", string(reason)))
			s.emit(ctx, telemetry.EventRefreshRejected, "", "reason", string(reason))
		} else if errors.Is(err, autherr.ErrAccountBlocked) {
			s.metrics.Rotation(ctx, "blocked")
		}
		return nil, err
	}
	s.metrics.Rotation(ctx, "success")
	s.audit.LogEvent(ctx, pair.Identity.ID, auditdomain.ActionRefreshSuccess, auditdomain.ResourceSession, "")
	s.emit(ctx, telemetry.EventRefreshRotated, pair.Identity.ID)
	return s.bundle(pair), nil
}

// SendOTP issues a verification code for the identity registered under email and delivers
// it through the configured notifier. Delivery failures are returned, not retried.
// Suspended and banned identities get ErrAccountBlocked.
func (s *AuthService) SendOTP(ctx context.Context, email string) (sent *CodeSent, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.SendOTP")
	defer func() { endSpan(span, err) }()

	identity, err := s.unverifiedByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	purpose, destination, masked := s.channelTarget(identity)

	issued, err := s.challenges.Issue(ctx, identity.ID, purpose)
	if err != nil {
		var cd *autherr.OTPCooldownError
		if errors.As(err, &cd) {
			s.metrics.OTPIssued(ctx, "cooldown")
			s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionOTPCooldown, auditdomain.ResourceOTPChallenge, "")
		}
		return nil, err
	}
	if err := s.notifier.SendVerificationCode(ctx, destination, identity.FullName, issued.Code, issued.ExpiresAt); err != nil {
		s.log.Error("verification code delivery failed", "op", "send_otp", "identity_id", identity.ID, "purpose", string(purpose), "error", err)
		s.metrics.OTPIssued(ctx, "delivery_failed")
		return nil, fmt.Errorf("%w: %w", autherr.ErrDeliveryFailed, err)
	}
	s.metrics.OTPIssued(ctx, "sent")
	s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionOTPIssued, auditdomain.ResourceOTPChallenge, audit.Metadata("channel", string(s.notifier.Channel())))
	s.emit(ctx, telemetry.EventOTPIssued, identity.ID, "channel", string(s.notifier.Channel()))
	return &CodeSent{
		Destination:     masked,
		Channel:         string(s.notifier.Channel()),
		ExpiresAt:       issued.ExpiresAt,
		CooldownSeconds: issued.CooldownSeconds,
	}, nil
}

// VerifyOTP checks code for the identity registered under email and, on success, marks the
// identity verified and ACTIVE.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (summary *domain.Summary, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyOTP")
	defer func() { endSpan(span, err) }()

	identity, err := s.unverifiedByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	purpose, _, _ := s.channelTarget(identity)
	if err := s.challenges.Verify(ctx, identity.ID, purpose, code); err != nil {
		var rej *autherr.OTPRejectedError
		if errors.As(err, &rej) {
			s.metrics.OTPVerification(ctx, string(rej.Reason))
			s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionOTPRejected, auditdomain.ResourceOTPChallenge, audit.Metadata("reason", string(rej.Reason)))
			s.emit(ctx, telemetry.EventOTPRejected, identity.ID, "reason", string(rej.Reason))
		}
		return nil, err
	}
	// The challenge is consumed; the state change must not be lost to a cancelled request.
	if err := s.identities.MarkVerified(context.WithoutCancel(ctx), identity.ID); err != nil {
		return nil, err
	}
	identity.Verified = true
	if identity.Status == domain.StatusNew {
		identity.Status = domain.StatusActive
	}
	s.metrics.OTPVerification(ctx, "verified")
	s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionOTPVerified, auditdomain.ResourceOTPChallenge, "")
	s.emit(ctx, telemetry.EventOTPVerified, identity.ID)
	sum := identity.Summary()
	return &sum, nil
}

func (s *AuthService) unverifiedByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, autherr.ErrIdentityNotFound
	}
	if identity.Verified {
		return nil, autherr.ErrAlreadyVerified
	}
	if err := s.admit(ctx, identity); err != nil {
		if errors.Is(err, autherr.ErrAccountBlocked) {
			s.audit.LogEvent(ctx, identity.ID, auditdomain.ActionOTPRejected, auditdomain.ResourceOTPChallenge, audit.Metadata("reason", "blocked"))
		}
		return nil, err
	}
	return identity, nil
}

// channelTarget picks the purpose and destination matching the notifier's medium.
func (s *AuthService) channelTarget(identity *domain.Identity) (otpdomain.Purpose, string, string) {
	if s.notifier != nil && s.notifier.Channel() == notification.ChannelSMS {
		return otpdomain.PurposePhoneVerification, identity.PhoneNumber, domain.MaskPhone(identity.PhoneNumber)
	}
	return otpdomain.PurposeEmailVerification, identity.Email, domain.MaskEmail(identity.Email)
}

// LogoutAll revokes every refresh token of the identity. Access tokens stay valid until
// they expire.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) (n int64, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.LogoutAll")
	defer func() { endSpan(span, err) }()

	n, err = s.sessions.RevokeAllForIdentity(ctx, identityID)
	if err != nil {
		return 0, err
	}
	s.audit.LogEvent(ctx, identityID, auditdomain.ActionLogoutAll, auditdomain.ResourceSession, "")
	s.emit(ctx, telemetry.EventSessionsRevoked, identityID)
	return n, nil
}

// Me returns the summary of the authenticated identity.
func (s *AuthService) Me(ctx context.Context, identityID string) (*domain.Summary, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, autherr.ErrIdentityNotFound
	}
	sum := identity.Summary()
	return &sum, nil
}

func (s *AuthService) bundle(p *sessionservice.Pair) *Session {
	exp, ok := s.tokens.ExpiryOf(p.AccessToken)
	if !ok {
		exp = s.now().UTC().Add(displayExpiryFallback)
	}
	return &Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    exp,
		TokenType:    TokenTypeBearer,
		Identity:     p.Identity.Summary(),
	}
}

func (s *AuthService) emit(ctx context.Context, eventType, identityID string, kv ...string) {
	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(eventType, identityID, kv...))
}

// endSpan marks the span failed only for unexpected errors; taxonomy outcomes are normal.
func endSpan(span trace.Span, err error) {
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected failure")
	}
	span.End()
}

func isExpected(err error) bool {
	for _, target := range []error{
		autherr.ErrInvalidCredentials, autherr.ErrAccountBlocked, autherr.ErrAlreadyVerified,
		autherr.ErrMalformedInput, autherr.ErrIdentityNotFound, autherr.ErrDuplicateIdentifier,
		autherr.ErrRefreshRejected, autherr.ErrOTPCooldown, autherr.ErrOTPRejected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
