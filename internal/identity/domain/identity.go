package domain

import "time"

// Identity is a registered person. Email, phone number and national ID are each unique.
type Identity struct {
	ID           string
	FullName     string
	Email        string
	PhoneNumber  string // E.164
	NationalID   string
	PasswordHash string
	Verified     bool // false until the email verification code is accepted
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Status is the account state. Only the orchestrator moves NEW to ACTIVE; SUSPENDED and
// BANNED are set by operators and block every authentication path.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusBanned    Status = "BANNED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusSuspended, StatusBanned:
		return true
	}
	return false
}

// Blocked reports whether s denies authentication.
func (s Status) Blocked() bool {
	return s == StatusSuspended || s == StatusBanned
}

// Summary is the identity view returned alongside a session.
type Summary struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Verified    bool      `json:"is_verified"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the public view of i.
func (i *Identity) Summary() Summary {
	return Summary{
		ID:          i.ID,
		FullName:    i.FullName,
		Email:       i.Email,
		PhoneNumber: i.PhoneNumber,
		Verified:    i.Verified,
		Status:      i.Status,
		CreatedAt:   i.CreatedAt,
	}
}
