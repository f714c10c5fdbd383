// Package audit records security-relevant auth events to the audit_logs table.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"identity-session-engine/internal/audit/domain"
	auditrepo "identity-session-engine/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

type clientIPKey struct{}

// WithClientIP returns ctx carrying the caller's IP for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the IP stored by WithClientIP, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged
// and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, identityID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *slog.Logger
	now         func() time.Time
}

// NewLogger returns a Logger persisting to repo. A nil ipExtractor uses ClientIP.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *slog.Logger) *Logger {
	if ipExtractor == nil {
		ipExtractor = ClientIP
	}
	if log == nil {
		log = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log, now: time.Now}
}

// LogEvent writes one audit log entry. The write survives caller cancellation.
func (l *Logger) LogEvent(ctx context.Context, identityID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Action:     action,
		Resource:   resource,
		IP:         l.ipExtractor(ctx),
		Metadata:   metadata,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Warn("audit write failed", "action", action, "resource", resource, "error", err)
	}
}

// Metadata encodes key/value pairs as a JSON object. A trailing key without value is dropped.
func Metadata(kv ...string) string {
	if len(kv) < 2 {
		return ""
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
