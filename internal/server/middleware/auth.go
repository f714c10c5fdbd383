// Package middleware holds the fiber middleware shared by the HTTP routes.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator validates access tokens.
type AccessValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// RequireBearer rejects requests without a valid access token and stores the identity in the
// user context for handlers. Refresh tokens are opaque and never accepted here.
func RequireBearer(tokens AccessValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return unauthorized(c)
		}
		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			return unauthorized(c)
		}
		c.SetUserContext(WithIdentity(c.UserContext(), claims.Subject, claims.ID))
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid authorization"})
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
