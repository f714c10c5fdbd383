// Package handler exposes readiness over HTTP for load balancers.
package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Checker reports readiness.
type Checker interface {
	Check(ctx context.Context) error
}

// Handler serves GET /health.
type Handler struct {
	checker Checker
}

// New returns a Handler. A nil checker always reports serving.
func New(checker Checker) *Handler {
	return &Handler{checker: checker}
}

// Register mounts the route on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/health", h.Health)
}

// Health returns 200 SERVING or 503 NOT_SERVING. Probe errors are not exposed.
func (h *Handler) Health(c *fiber.Ctx) error {
	if h.checker != nil {
		if err := h.checker.Check(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "NOT_SERVING"})
		}
	}
	return c.JSON(fiber.Map{"status": "SERVING"})
}
