package domain

import "time"

// Purpose tags what a challenge verifies.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePhoneVerification Purpose = "PHONE_VERIFICATION"
)

// Challenge is one issued verification code. Only the SHA-256 digest of the code is stored.
// Attempts never decreases; a challenge becomes terminal once Used is set.
type Challenge struct {
	ID         string
	IdentityID string
	Purpose    Purpose
	CodeHash   string
	Used       bool
	Attempts   int
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Active reports whether c is unused and unexpired at now. Expired challenges need no
// explicit transition; they simply stop being active.
func (c *Challenge) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
