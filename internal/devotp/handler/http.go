// Package handler exposes the dev code store over HTTP.
package handler

import (
	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/devotp"
)

const devOTPNote = "DEV MODE ONLY"

// Handler serves GET /dev/otp. Only registered when dev OTP mode is enabled and not production.
type Handler struct {
	store devotp.Store
}

// New returns a Handler reading from store.
func New(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts the route on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/dev/otp", h.GetOTP)
}

// GetOTP returns the latest code sent to the destination query parameter.
func (h *Handler) GetOTP(c *fiber.Ctx) error {
	destination := c.Query("destination")
	if destination == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "destination is required"})
	}
	code, ok := h.store.Get(c.UserContext(), destination)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "code not found or expired"})
	}
	return c.JSON(fiber.Map{"otp": code, "note": devOTPNote})
}
