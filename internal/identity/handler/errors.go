package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/autherr"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error             string `json:"error"`
	Field             string `json:"field,omitempty"`
	Reason            string `json:"reason,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// writeError maps the auth error taxonomy onto HTTP statuses. Refresh rejections collapse to
// one generic 401 so callers cannot tell a revoked token from an unknown one.
func writeError(c *fiber.Ctx, log *slog.Logger, op string, err error) error {
	var (
		validation *autherr.ValidationError
		duplicate  *autherr.DuplicateIdentifierError
		cooldown   *autherr.OTPCooldownError
		rejected   *autherr.OTPRejectedError
	)
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: validation.Msg, Field: validation.Field})
	case errors.Is(err, autherr.ErrMalformedInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "malformed input"})
	case errors.Is(err, autherr.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: "invalid credentials"})
	case errors.Is(err, autherr.ErrRefreshRejected):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: "invalid refresh token"})
	case errors.Is(err, autherr.ErrAccountBlocked):
		return c.Status(fiber.StatusForbidden).JSON(errorBody{Error: "account suspended or banned"})
	case errors.Is(err, autherr.ErrIdentityNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "identity not found"})
	case errors.As(err, &duplicate):
		return c.Status(fiber.StatusConflict).JSON(errorBody{Error: duplicate.Error(), Field: string(duplicate.Field)})
	case errors.Is(err, autherr.ErrAlreadyVerified):
		return c.Status(fiber.StatusConflict).JSON(errorBody{Error: "identity already verified"})
	case errors.As(err, &rejected):
		body := errorBody{Error: "verification code rejected", Reason: string(rejected.Reason)}
		if rejected.Reason == autherr.OTPCodeMismatch {
			n := rejected.AttemptsRemaining
			body.AttemptsRemaining = &n
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
	case errors.As(err, &cooldown):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(cooldown.SecondsRemaining))
		return c.Status(fiber.StatusTooManyRequests).JSON(errorBody{
			Error:             "verification code requested too recently",
			RetryAfterSeconds: cooldown.SecondsRemaining,
		})
	case errors.Is(err, autherr.ErrDeliveryFailed):
		return c.Status(fiber.StatusBadGateway).JSON(errorBody{Error: "verification code could not be delivered"})
	}
	log.Error("request failed", "op", op, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: "internal error"})
}
