package domain

import "time"

// RefreshToken is one issued session-continuation credential. Only the SHA-256 digest of
// the secret is stored; the secret itself is handed to the client once and never kept.
type RefreshToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether t is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid reports whether t is neither revoked nor expired at now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
