package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	// ErrInvalidKey is returned when signing key material cannot be used.
	ErrInvalidKey = errors.New("invalid key")
	// ErrNoSigningKey is returned when neither a key pair nor an HMAC secret is configured.
	ErrNoSigningKey = errors.New("no JWT signing key configured: set JWT_PRIVATE_KEY and JWT_PUBLIC_KEY, or JWT_SECRET")
)

// SigningSettings selects how access tokens are signed. A configured key pair wins over
// the HMAC secret. Each key is inline PEM (single-line values may use literal "\n") or
// a path to a PEM file.
type SigningSettings struct {
	PrivateKey string
	PublicKey  string
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
}

// NewTokenProviderFromSettings builds the TokenProvider described by s. A key pair must be
// complete, RSA or ECDSA P-256, and the public key must be the private key's own half.
func NewTokenProviderFromSettings(s SigningSettings, opts ...Option) (*TokenProvider, error) {
	switch {
	case s.PrivateKey == "" && s.PublicKey == "":
		if s.Secret == "" {
			return nil, ErrNoSigningKey
		}
		return NewHMACTokenProvider([]byte(s.Secret), s.Issuer, s.Audience, s.AccessTTL, opts...)
	case s.PrivateKey == "" || s.PublicKey == "":
		return nil, fmt.Errorf("jwt keys: both private and public key are required: %w", ErrInvalidKey)
	}

	signer, err := signingKey(s.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("jwt private key: %w", err)
	}
	pub, err := verificationKey(s.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwt public key: %w", err)
	}
	own, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !own.Equal(pub) {
		return nil, fmt.Errorf("jwt keys: public key does not match private key: %w", ErrInvalidKey)
	}
	return NewTokenProvider(signer, pub, s.Issuer, s.Audience, s.AccessTTL, opts...)
}

// keyBlock resolves an inline-or-path key setting to its first PEM block.
func keyBlock(v string) (*pem.Block, error) {
	v = strings.TrimSpace(v)
	var raw []byte
	switch {
	case v == "":
		return nil, ErrInvalidKey
	case strings.HasPrefix(v, "-----BEGIN"):
		raw = []byte(strings.ReplaceAll(v, `\n`, "\n"))
	default:
		b, err := os.ReadFile(v)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		raw = b
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block: %w", ErrInvalidKey)
	}
	return block, nil
}

func signingKey(v string) (crypto.Signer, error) {
	block, err := keyBlock(v)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unexpected PEM type %q: %w", block.Type, ErrInvalidKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok || keyAlg(signer.Public()) == "" {
		return nil, fmt.Errorf("unsupported private key: %w", ErrInvalidKey)
	}
	return signer, nil
}

func verificationKey(v string) (crypto.PublicKey, error) {
	block, err := keyBlock(v)
	if err != nil {
		return nil, err
	}
	var key crypto.PublicKey
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unexpected PEM type %q: %w", block.Type, ErrInvalidKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if keyAlg(key) == "" {
		return nil, fmt.Errorf("unsupported public key: %w", ErrInvalidKey)
	}
	return key, nil
}

// keyAlg pins the JWT algorithm to the key: RS256 for RSA, ES256 for ECDSA on P-256.
// Other curves and key types have no algorithm.
func keyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
	}
	return ""
}
