// Package service issues and verifies one-time verification codes with a resend cooldown
// and a bounded number of attempts.
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
	"identity-session-engine/internal/otp/domain"
	"identity-session-engine/internal/otp/repository"
	"identity-session-engine/internal/security"
)

// maxRedraws bounds how often a code equal to the one being replaced is redrawn.
const maxRedraws = 8

// Issued is the outcome of a successful Issue. Code is plaintext and must only be handed
// to the delivery channel.
type Issued struct {
	ChallengeID     string
	Code            string
	ExpiresAt       time.Time
	CooldownSeconds int
}

// Manager runs the per (identity, purpose) challenge state machine. All state lives in
// the repository.
type Manager struct {
	repo     repository.Repository
	codes    CodeSource
	settings config.Engine
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCodeSource replaces the crypto/rand code source.
func WithCodeSource(src CodeSource) Option {
	return func(m *Manager) {
		if src != nil {
			m.codes = src
		}
	}
}

// NewManager returns a Manager.
func NewManager(repo repository.Repository, settings config.Engine, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		codes:    CryptoCodeSource{},
		settings: settings,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CooldownSeconds is the resend window in whole seconds.
func (m *Manager) CooldownSeconds() int {
	return ceilSeconds(m.settings.OTPCooldown)
}

// Issue creates a fresh challenge unless the newest active one is still inside the
// cooldown window, in which case an *autherr.OTPCooldownError is returned and nothing
// changes.
func (m *Manager) Issue(ctx context.Context, identityID string, purpose domain.Purpose) (*Issued, error) {
	if err := checkArgs(identityID, purpose); err != nil {
		return nil, err
	}
	now := m.now().UTC()

	active, err := m.repo.GetActive(ctx, identityID, purpose, now)
	if err != nil {
		return nil, err
	}
	var previousHash string
	if active != nil {
		elapsed := now.Sub(active.CreatedAt)
		if elapsed < m.settings.OTPCooldown {
			remaining := ceilSeconds(m.settings.OTPCooldown - elapsed)
			if limit := m.CooldownSeconds(); remaining > limit {
				remaining = limit
			}
			return nil, &autherr.OTPCooldownError{SecondsRemaining: remaining}
		}
		previousHash = active.CodeHash
	}

	code, err := m.draw(previousHash)
	if err != nil {
		return nil, err
	}
	if _, err := m.repo.InvalidateActive(ctx, identityID, purpose); err != nil {
		return nil, err
	}
	c := &domain.Challenge{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Purpose:    purpose,
		CodeHash:   security.Digest(code),
		ExpiresAt:  now.Add(m.settings.OTPTTL),
		CreatedAt:  now,
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	m.log.Debug("otp challenge issued", "identity_id", identityID, "purpose", string(purpose), "challenge_id", c.ID)
	return &Issued{
		ChallengeID:     c.ID,
		Code:            code,
		ExpiresAt:       c.ExpiresAt,
		CooldownSeconds: m.CooldownSeconds(),
	}, nil
}

// Verify checks code against the active challenge. A challenge that has already used its
// attempt budget is closed on the next call with OTPAttemptsExhausted; the mismatch that
// spends the last attempt still reports OTPCodeMismatch with zero remaining. Success only
// consumes the challenge; the caller owns any identity state change.
func (m *Manager) Verify(ctx context.Context, identityID string, purpose domain.Purpose, code string) error {
	if err := checkArgs(identityID, purpose); err != nil {
		return err
	}
	now := m.now().UTC()

	active, err := m.repo.GetActive(ctx, identityID, purpose, now)
	if err != nil {
		return err
	}
	if active == nil {
		return &autherr.OTPRejectedError{Reason: autherr.OTPNoActiveChallenge}
	}

	// The attempt is spent before the code is compared, so concurrent guesses cannot
	// exceed the budget.
	attempts, spent, err := m.repo.SpendAttempt(ctx, active.ID, m.settings.OTPMaxAttempts)
	if err != nil {
		return err
	}
	if !spent {
		closed, err := m.repo.MarkUsed(ctx, active.ID)
		if err != nil {
			return err
		}
		if !closed {
			return &autherr.OTPRejectedError{Reason: autherr.OTPNoActiveChallenge}
		}
		m.log.Info("otp challenge exhausted", "identity_id", identityID, "purpose", string(purpose), "challenge_id", active.ID)
		return &autherr.OTPRejectedError{Reason: autherr.OTPAttemptsExhausted}
	}

	if !security.MatchesDigest(code, active.CodeHash) {
		remaining := m.settings.OTPMaxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		return &autherr.OTPRejectedError{Reason: autherr.OTPCodeMismatch, AttemptsRemaining: remaining}
	}

	consumed, err := m.repo.MarkUsed(ctx, active.ID)
	if err != nil {
		return err
	}
	if !consumed {
		return &autherr.OTPRejectedError{Reason: autherr.OTPNoActiveChallenge}
	}
	return nil
}

// Sweep deletes challenges that expired before the cutoff.
func (m *Manager) Sweep(ctx context.Context, before time.Time) (int64, error) {
	return m.repo.DeleteStale(ctx, before)
}

func (m *Manager) draw(previousHash string) (string, error) {
	for i := 0; i < maxRedraws; i++ {
		code, err := m.codes.Code(m.settings.OTPLength)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		if previousHash == "" || !security.MatchesDigest(code, previousHash) {
			return code, nil
		}
	}
	return "", errors.New("generate otp: code source keeps repeating the previous code")
}

func checkArgs(identityID string, purpose domain.Purpose) error {
	if identityID == "" {
		return autherr.Invalid("identity_id", "is required")
	}
	switch purpose {
	case domain.PurposeEmailVerification, domain.PurposePhoneVerification:
		return nil
	default:
		return autherr.Invalid("purpose", "unknown purpose")
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// AttemptsRemaining extracts the remaining attempts from a code mismatch, if err is one.
func AttemptsRemaining(err error) (int, bool) {
	var rej *autherr.OTPRejectedError
	if errors.As(err, &rej) && rej.Reason == autherr.OTPCodeMismatch {
		return rej.AttemptsRemaining, true
	}
	return 0, false
}
