package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/telemetry"
)

// EventHTTPRequest is emitted once per served request.
const EventHTTPRequest = "http.request"

// RequestTelemetry logs each request and emits an http.request event after the handler
// returns. Paths in skip are neither logged nor emitted. Emission is best effort.
func RequestTelemetry(emitter telemetry.EventEmitter, log *slog.Logger, skip map[string]bool) fiber.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if skip[c.Path()] {
			return err
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		ctx := c.UserContext()
		identityID, _ := IdentityID(ctx)
		elapsed := time.Since(start)
		route := c.Route().Path

		log.Info("http request",
			"method", c.Method(),
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		event := telemetry.NewEvent(EventHTTPRequest, identityID,
			"method", c.Method(),
			"route", route,
			"status_code", strconv.Itoa(status),
			"duration_ms", strconv.FormatInt(elapsed.Milliseconds(), 10),
		)
		event.Source = "http_middleware"
		telemetry.EmitAsync(emitter, ctx, event)
		return err
	}
}
