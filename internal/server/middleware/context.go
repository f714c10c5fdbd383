package middleware

import "context"

type contextKey struct{ name string }

var (
	identityIDKey = contextKey{"identity_id"}
	tokenIDKey    = contextKey{"jti"}
)

// WithIdentity returns a context carrying the authenticated identity and access token ID.
func WithIdentity(ctx context.Context, identityID, tokenID string) context.Context {
	ctx = context.WithValue(ctx, identityIDKey, identityID)
	return context.WithValue(ctx, tokenIDKey, tokenID)
}

// IdentityID returns the identity_id from ctx and true if set; otherwise "", false.
func IdentityID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityIDKey).(string)
	return v, ok && v != ""
}

// TokenID returns the access token jti from ctx and true if set; otherwise "", false.
func TokenID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenIDKey).(string)
	return v, ok && v != ""
}
