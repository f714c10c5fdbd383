// Package engine evaluates the Rego admission policy that decides whether an identity may
// hold a session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"identity-session-engine/internal/identity/domain"
)

const admissionQuery = "data.identity.admission.allow"

// DefaultAdmissionPolicy refuses SUSPENDED and BANNED identities and admits everything else.
const DefaultAdmissionPolicy = `package identity.admission

default allow := false

blocked_statuses := {"SUSPENDED", "BANNED"}

allow if {
	input.identity.id != ""
	not blocked_statuses[input.identity.status]
}
`

// OPAAdmission evaluates a prepared Rego query. The query is compiled once at construction.
type OPAAdmission struct {
	query rego.PreparedEvalQuery
	log   *slog.Logger
}

// NewOPAAdmission compiles policy, which must define data.identity.admission.allow. An empty
// policy uses DefaultAdmissionPolicy.
func NewOPAAdmission(ctx context.Context, policy string, log *slog.Logger) (*OPAAdmission, error) {
	if policy == "" {
		policy = DefaultAdmissionPolicy
	}
	if log == nil {
		log = slog.Default()
	}
	q, err := rego.New(
		rego.Query(admissionQuery),
		rego.Module("admission.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile admission policy: %w", err)
	}
	return &OPAAdmission{query: q, log: log}, nil
}

// LoadOPAAdmission reads the policy from path, or uses the default when path is empty.
func LoadOPAAdmission(ctx context.Context, path string, log *slog.Logger) (*OPAAdmission, error) {
	if path == "" {
		return NewOPAAdmission(ctx, "", log)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admission policy: %w", err)
	}
	return NewOPAAdmission(ctx, string(raw), log)
}

// Allows reports whether identity may be issued a session. Evaluation errors are returned
// with false so callers fail closed.
func (a *OPAAdmission) Allows(ctx context.Context, identity *domain.Identity) (bool, error) {
	if identity == nil {
		return false, errors.New("admission: nil identity")
	}
	allowed, err := a.eval(ctx, map[string]interface{}{
		"identity": map[string]interface{}{
			"id":        identity.ID,
			"status":    string(identity.Status),
			"verified":  identity.Verified,
			"has_phone": identity.PhoneNumber != "",
		},
	})
	if err != nil {
		a.log.Error("admission policy evaluation failed", "identity_id", identity.ID, "error", err)
		return false, err
	}
	if !allowed {
		a.log.Info("admission denied", "identity_id", identity.ID, "status", string(identity.Status))
	}
	return allowed, nil
}

// HealthCheck evaluates the prepared query against a minimal ACTIVE identity. It does not
// touch the database.
func (a *OPAAdmission) HealthCheck(ctx context.Context) error {
	allowed, err := a.eval(ctx, map[string]interface{}{
		"identity": map[string]interface{}{"id": "health", "status": string(domain.StatusActive), "verified": true, "has_phone": false},
	})
	if err != nil {
		return err
	}
	if !allowed {
		return errors.New("admission policy rejects an active identity")
	}
	return nil
}

func (a *OPAAdmission) eval(ctx context.Context, input map[string]interface{}) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval admission policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("admission policy returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("admission policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}
