// Package handler exposes an identity's own audit trail over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"identity-session-engine/internal/audit/domain"
	"identity-session-engine/internal/server/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Lister reads audit entries for one identity, newest first.
type Lister interface {
	ListByIdentity(ctx context.Context, identityID string, limit, offset int32) ([]*domain.AuditLog, error)
}

type entry struct {
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	IP        string          `json:"ip"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler serves GET /api/auth/activity.
type Handler struct {
	repo Lister
	log  *slog.Logger
}

// New returns a Handler. A nil log uses slog.Default.
func New(repo Lister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

// Register mounts the route on r behind requireAuth.
func (h *Handler) Register(r fiber.Router, requireAuth fiber.Handler) {
	r.Get("/api/auth/activity", requireAuth, h.ListActivity)
}

// ListActivity returns the caller's audit entries. limit defaults to 20 and is capped at 100.
func (h *Handler) ListActivity(c *fiber.Ctx) error {
	identityID, ok := middleware.IdentityID(c.UserContext())
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid authorization"})
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	logs, err := h.repo.ListByIdentity(c.UserContext(), identityID, int32(limit), int32(offset))
	if err != nil {
		h.log.Error("list audit logs failed", "op", "activity", "identity_id", identityID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	out := make([]entry, 0, len(logs))
	for _, l := range logs {
		e := entry{Action: l.Action, Resource: l.Resource, IP: l.IP, CreatedAt: l.CreatedAt}
		if l.Metadata != "" && json.Valid([]byte(l.Metadata)) {
			e.Metadata = json.RawMessage(l.Metadata)
		}
		out = append(out, e)
	}
	return c.JSON(fiber.Map{"entries": out, "limit": limit, "offset": offset})
}
