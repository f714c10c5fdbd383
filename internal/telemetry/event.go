// Package telemetry defines auth events and emits them best-effort to OTel logs and Kafka.
package telemetry

import "time"

// Event types emitted by the auth flows.
const (
	EventRegistered      = "identity.registered"
	EventLoginSucceeded  = "session.login_succeeded"
	EventLoginFailed     = "session.login_failed"
	EventRefreshRotated  = "session.refresh_rotated"
	EventRefreshRejected = "session.refresh_rejected"
	EventSessionsRevoked = "session.revoked_all"
	EventOTPIssued       = "otp.issued"
	EventOTPVerified     = "otp.verified"
	EventOTPRejected     = "otp.rejected"
)

// SourceAuth tags events produced by the auth service.
const SourceAuth = "identity-session-engine"

// Event is one auth event. Metadata never carries secrets.
type Event struct {
	Type       string            `json:"event_type"`
	IdentityID string            `json:"identity_id,omitempty"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEvent returns an Event of the given type stamped with the current time.
func NewEvent(eventType, identityID string, kv ...string) *Event {
	e := &Event{Type: eventType, IdentityID: identityID, Source: SourceAuth, CreatedAt: time.Now().UTC()}
	if len(kv) >= 2 {
		e.Metadata = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Metadata[kv[i]] = kv[i+1]
		}
	}
	return e
}
