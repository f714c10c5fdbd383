package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	audithandler "identity-session-engine/internal/audit/handler"
	"identity-session-engine/internal/devotp"
	devotphandler "identity-session-engine/internal/devotp/handler"
	healthhandler "identity-session-engine/internal/health/handler"
	identityhandler "identity-session-engine/internal/identity/handler"
	"identity-session-engine/internal/server/middleware"
	"identity-session-engine/internal/telemetry"
)

// Deps holds the collaborators of the HTTP API. Optional fields may be nil.
type Deps struct {
	// Auth runs the register, login, refresh and verification flows.
	Auth identityhandler.AuthService
	// Tokens validates Bearer access tokens for protected routes.
	Tokens middleware.AccessValidator
	// Activity serves GET /api/auth/activity. If nil, the route is not mounted.
	Activity audithandler.Lister
	// Health backs GET /health. If nil, the endpoint always reports serving.
	Health healthhandler.Checker
	// DevOTP serves GET /dev/otp. Set only when dev OTP mode is enabled outside production.
	DevOTP devotp.Store
	// Events receives one http.request event per request.
	Events telemetry.EventEmitter
	// CORSAllowOrigins is a comma-separated origin list; empty means "*".
	CORSAllowOrigins string
	Log              *slog.Logger
}

// NewHTTPApp builds the fiber app with every route mounted.
func NewHTTPApp(deps Deps) *fiber.App {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:               "identity-session-engine",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	origins := deps.CORSAllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.ClientIP())
	app.Use(middleware.RequestTelemetry(deps.Events, log, map[string]bool{"/health": true}))

	requireAuth := middleware.RequireBearer(deps.Tokens)
	healthhandler.New(deps.Health).Register(app)
	identityhandler.New(deps.Auth, log).Register(app, requireAuth)
	if deps.Activity != nil {
		audithandler.New(deps.Activity, log).Register(app, requireAuth)
	}
	if deps.DevOTP != nil {
		log.Warn("dev OTP endpoint enabled; codes are retrievable over HTTP")
		devotphandler.New(deps.DevOTP).Register(app)
	}
	return app
}

// errorHandler renders errors that escape handlers, such as unknown routes or panics
// turned into errors by the recover middleware.
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		log.Error("unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
