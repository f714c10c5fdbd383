package domain

import "time"

// Actions recorded by the auth flows.
const (
	ActionRegister        = "register"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionRefreshSuccess  = "refresh_success"
	ActionRefreshRejected = "refresh_rejected"
	ActionOTPIssued       = "otp_issued"
	ActionOTPCooldown     = "otp_cooldown"
	ActionOTPVerified     = "otp_verified"
	ActionOTPRejected     = "otp_rejected"
	ActionLogoutAll       = "logout_all"
)

// Resources an action applies to.
const (
	ResourceIdentity     = "identity"
	ResourceSession      = "session"
	ResourceOTPChallenge = "otp_challenge"
)

// AuditLog represents an audit event. IdentityID is empty when the actor is unknown,
// e.g. a failed login for an unregistered identifier.
type AuditLog struct {
	ID         string
	IdentityID string
	Action     string
	Resource   string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
