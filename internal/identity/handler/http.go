// Package handler exposes the auth flows over HTTP.
package handler

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/identity/domain"
	"identity-session-engine/internal/identity/service"
	"identity-session-engine/internal/server/middleware"
)

// AuthService is the subset of the auth orchestrator the routes call.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, identifier, password string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*service.Session, error)
	SendOTP(ctx context.Context, email string) (*service.CodeSent, error)
	VerifyOTP(ctx context.Context, email, code string) (*domain.Summary, error)
	LogoutAll(ctx context.Context, identityID string) (int64, error)
	Me(ctx context.Context, identityID string) (*domain.Summary, error)
}

type registerRequest struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,max=254"`
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
	NationalID  string `json:"national_id" validate:"required,max=16"`
	Password    string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	EmailOrPhone string `json:"email_or_phone" validate:"required,max=254"`
	Password     string `json:"password" validate:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=512"`
}

type sendOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// Handler serves the /api/auth and /api/otp routes.
type Handler struct {
	auth     AuthService
	validate *validator.Validate
	log      *slog.Logger
}

// New returns a Handler. A nil log uses slog.Default.
func New(auth AuthService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{auth: auth, validate: v, log: log}
}

// Register mounts the routes on r. requireAuth guards the routes that need an access token.
func (h *Handler) Register(r fiber.Router, requireAuth fiber.Handler) {
	auth := r.Group("/api/auth")
	auth.Post("/register", h.RegisterIdentity)
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Get("/me", requireAuth, h.Me)
	auth.Post("/logout", requireAuth, h.Logout)

	otp := r.Group("/api/otp")
	otp.Post("/send", h.SendOTP)
	otp.Post("/verify", h.VerifyOTP)
}

// bind parses the JSON body into dst and runs the struct tags. It writes the 400 itself and
// returns false when the request is unusable.
func (h *Handler) bind(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "invalid request body"})
	}
	if err := h.validate.Struct(dst); err != nil {
		field := ""
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "invalid request", Field: field})
	}
	return true, nil
}

// RegisterIdentity handles POST /api/auth/register.
func (h *Handler) RegisterIdentity(c *fiber.Ctx) error {
	var req registerRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	sess, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		NationalID:  req.NationalID,
		Password:    req.Password,
	})
	if err != nil {
		return writeError(c, h.log, "register", err)
	}
	c.Location("/api/auth/me")
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	sess, err := h.auth.Login(c.UserContext(), req.EmailOrPhone, req.Password)
	if err != nil {
		return writeError(c, h.log, "login", err)
	}
	return c.JSON(sess)
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	sess, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return writeError(c, h.log, "refresh", err)
	}
	return c.JSON(sess)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, _ := middleware.IdentityID(c.UserContext())
	sum, err := h.auth.Me(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, "me", err)
	}
	return c.JSON(sum)
}

// Logout handles POST /api/auth/logout by revoking every refresh token of the caller.
func (h *Handler) Logout(c *fiber.Ctx) error {
	id, _ := middleware.IdentityID(c.UserContext())
	n, err := h.auth.LogoutAll(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, "logout", err)
	}
	return c.JSON(fiber.Map{"revoked": n})
}

// SendOTP handles POST /api/otp/send.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	sent, err := h.auth.SendOTP(c.UserContext(), req.Email)
	if err != nil {
		return writeError(c, h.log, "send_otp", err)
	}
	return c.JSON(sent)
}

// VerifyOTP handles POST /api/otp/verify.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	sum, err := h.auth.VerifyOTP(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return writeError(c, h.log, "verify_otp", err)
	}
	return c.JSON(fiber.Map{"verified": true, "user": sum})
}
