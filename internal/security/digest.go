package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 of secret. Refresh secrets and OTP codes are
// stored only as digests.
func Digest(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// HashRefreshToken returns the digest used to store and look up a refresh secret.
// Looking up by exact digest is equivalent to exact match on the secret.
func HashRefreshToken(token string) string {
	return Digest(token)
}

// MatchesDigest compares the digest of secret with storedDigest in constant time.
// Empty secrets never match.
func MatchesDigest(secret, storedDigest string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Digest(secret)), []byte(storedDigest)) == 1
}
