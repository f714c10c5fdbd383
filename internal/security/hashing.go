package security

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"identity-session-engine/internal/autherr"
)

// dummyPassword is hashed once and compared against when the identity does not exist,
// so a login for an unknown identifier costs the same as a wrong password.
const dummyPassword = "dummy-password-for-timing-equalization"

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4..31. Zero or
// negative cost selects 12.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = 12
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of password suitable for storage.
// An empty password is a contract violation and returns autherr.ErrMalformedInput.
func (h *Hasher) Hash(password []byte) (string, error) {
	if len(password) == 0 {
		return "", autherr.Invalid("password", "must not be empty")
	}
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", autherr.Invalid("password", "must be at most 72 bytes")
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored hash. A malformed stored hash is
// a verification failure, not an error. Empty inputs return autherr.ErrMalformedInput.
func (h *Hasher) Verify(hash string, password []byte) (bool, error) {
	if hash == "" || len(password) == 0 {
		return false, autherr.Invalid("password", "password and hash must not be empty")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), password); err != nil {
		return false, nil
	}
	return true, nil
}

// NeedsRehash reports whether hash was produced with a lower cost than h.Cost or
// cannot be parsed at all.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.Cost
}

// EqualizeTiming runs one bcrypt comparison against a fixed hash and discards the result.
func (h *Hasher) EqualizeTiming(password []byte) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), h.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, password)
}
