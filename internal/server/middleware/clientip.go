package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/audit"
)

// ClientIP stores the caller address in the user context so audit rows can record it.
func ClientIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(audit.WithClientIP(c.UserContext(), clientIP(c)))
		return c.Next()
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func clientIP(c *fiber.Ctx) string {
	if s := strings.TrimSpace(c.Get(fiber.HeaderXForwardedFor)); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(c.Get("X-Real-Ip")); s != "" {
		return s
	}
	if ip := c.Context().RemoteIP(); ip != nil {
		return ip.String()
	}
	return "unknown"
}
