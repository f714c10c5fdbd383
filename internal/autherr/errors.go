// Package autherr defines the typed failures returned by the identity and session engine.
// Every member is an expected outcome the caller can act on; storage and configuration
// failures are returned as ordinary wrapped errors instead.
package autherr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match their kind sentinel via errors.Is.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountBlocked      = errors.New("account suspended or banned")
	ErrAlreadyVerified     = errors.New("identity already verified")
	ErrMalformedInput      = errors.New("malformed input")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrDeliveryFailed      = errors.New("verification code delivery failed")
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrRefreshRejected     = errors.New("refresh token rejected")
	ErrOTPCooldown         = errors.New("verification code requested too recently")
	ErrOTPRejected         = errors.New("verification code rejected")
)

// Field names an identifier that must be unique across identities.
type Field string

const (
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone_number"
	FieldNationalID Field = "national_id"
)

// DuplicateIdentifierError reports which unique identifier is already claimed.
type DuplicateIdentifierError struct {
	Field Field
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

func (e *DuplicateIdentifierError) Is(target error) bool { return target == ErrDuplicateIdentifier }

// RefreshReason distinguishes why a presented refresh token was refused.
type RefreshReason string

const (
	RefreshNotFound RefreshReason = "not_found"
	RefreshRevoked  RefreshReason = "revoked"
	RefreshExpired  RefreshReason = "expired"
)

// RefreshRejectedError is returned by rotation. Callers outside the engine should only
// see a generic unauthorized signal; Reason is for internal logging.
type RefreshRejectedError struct {
	Reason RefreshReason
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("refresh token rejected: %s", e.Reason)
}

func (e *RefreshRejectedError) Is(target error) bool { return target == ErrRefreshRejected }

// OTPCooldownError is returned when a new code is requested inside the resend window.
type OTPCooldownError struct {
	SecondsRemaining int
}

func (e *OTPCooldownError) Error() string {
	return fmt.Sprintf("verification code requested too recently; retry in %d seconds", e.SecondsRemaining)
}

func (e *OTPCooldownError) Is(target error) bool { return target == ErrOTPCooldown }

// OTPReason distinguishes why a verification attempt was refused.
type OTPReason string

const (
	OTPNoActiveChallenge OTPReason = "no_active_challenge"
	OTPAttemptsExhausted OTPReason = "attempts_exhausted"
	OTPCodeMismatch      OTPReason = "code_mismatch"
)

// OTPRejectedError carries the reason and how many attempts the caller has left.
// AttemptsRemaining is only meaningful for OTPCodeMismatch; it is 0 otherwise.
type OTPRejectedError struct {
	Reason            OTPReason
	AttemptsRemaining int
}

func (e *OTPRejectedError) Error() string {
	if e.Reason == OTPCodeMismatch {
		return fmt.Sprintf("verification code rejected: %s (%d attempts remaining)", e.Reason, e.AttemptsRemaining)
	}
	return fmt.Sprintf("verification code rejected: %s", e.Reason)
}

func (e *OTPRejectedError) Is(target error) bool { return target == ErrOTPRejected }

// ValidationError reports a field that failed normalization. It wraps ErrMalformedInput.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrMalformedInput }

// Invalid returns a ValidationError for field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
