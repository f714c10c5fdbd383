package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	logins        metric.Int64Counter
	rotations     metric.Int64Counter
	otpIssued     metric.Int64Counter
	verifications metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	logins, err := meter.Int64Counter("auth.login.attempts", metric.WithDescription("Login attempts by result"))
	if err != nil {
		return nil, err
	}
	rotations, err := meter.Int64Counter("auth.refresh.rotations", metric.WithDescription("Refresh rotations by result"))
	if err != nil {
		return nil, err
	}
	otpIssued, err := meter.Int64Counter("auth.otp.issued", metric.WithDescription("Verification code requests by result"))
	if err != nil {
		return nil, err
	}
	verifications, err := meter.Int64Counter("auth.otp.verifications", metric.WithDescription("Verification attempts by result"))
	if err != nil {
		return nil, err
	}
	return &Metrics{logins: logins, rotations: rotations, otpIssued: otpIssued, verifications: verifications}, nil
}

func add(ctx context.Context, c metric.Int64Counter, result string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) Login(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.logins, result)
	}
}

func (m *Metrics) Rotation(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.rotations, result)
	}
}

func (m *Metrics) OTPIssued(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.otpIssued, result)
	}
}

func (m *Metrics) OTPVerification(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.verifications, result)
	}
}
