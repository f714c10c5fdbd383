package security

import (
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when the HMAC secret is shorter than MinHMACSecretLen.
	ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")
)

const (
	// MinHMACSecretLen is the minimum HS256 secret length in bytes.
	MinHMACSecretLen = 32
	// RefreshSecretBytes is the number of random bytes in a refresh secret.
	RefreshSecretBytes = 64

	tokenTypeAccess = "access"
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	IsVerified  bool   `json:"is_verified"`
	TokenType   string `json:"token_type"`
}

// Option configures a TokenProvider.
type Option func(*TokenProvider)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) { p.now = now }
}

// TokenProvider issues and validates access JWTs and mints opaque refresh secrets.
// The signing algorithm is fixed at construction; tokens signed with any other
// algorithm fail validation.
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey (RS256 for RSA,
// ES256 for ECDSA P-256) and verifies with publicKey.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration, opts ...Option) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	alg := keyAlg(privateKey.Public())
	if alg == "" || keyAlg(publicKey) != alg {
		return nil, ErrInvalidKey
	}
	method := jwt.GetSigningMethod(alg)
	return newProvider(method, privateKey, publicKey, issuer, audience, accessTTL, opts), nil
}

// NewHMACTokenProvider returns a TokenProvider that signs and verifies with HS256.
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL time.Duration, opts ...Option) (*TokenProvider, error) {
	if len(secret) < MinHMACSecretLen {
		return nil, ErrWeakSecret
	}
	key := append([]byte(nil), secret...)
	return newProvider(jwt.SigningMethodHS256, key, key, issuer, audience, accessTTL, opts), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, accessTTL time.Duration, opts []Option) *TokenProvider {
	p := &TokenProvider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Alg returns the pinned signing algorithm.
func (p *TokenProvider) Alg() string {
	return p.method.Alg()
}

// IssueAccess issues a short-lived access JWT for the identity.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(identityID, email, phone string, verified bool) (token string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	now := p.now().UTC().Truncate(time.Second)
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   identityID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:       email,
		PhoneNumber: phone,
		IsVerified:  verified,
		TokenType:   tokenTypeAccess,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// IssueRefresh returns a new opaque refresh secret: 64 random bytes, base64 encoded.
// The secret carries no claims; only its digest is ever stored.
func (p *TokenProvider) IssueRefresh() (string, error) {
	b := make([]byte, RefreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ExpiryOf reads exp from token without verifying it. For display only; a malformed
// token or missing exp returns false.
func (p *TokenProvider) ExpiryOf(token string) (time.Time, bool) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ValidateAccess parses and validates the access token (algorithm, signature, exp, nbf,
// iss, aud, token_type) and returns its claims.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return p.verifyKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
