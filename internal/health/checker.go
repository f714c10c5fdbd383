// Package health reports readiness from the database and the admission policy engine.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the admission policy still evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const defaultCheckTimeout = 2 * time.Second

// Checker runs the readiness probes. Nil probes are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker. A non-positive timeout uses two seconds.
func NewChecker(db Pinger, policy PolicyChecker, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checker{db: db, policy: policy, timeout: timeout}
}

// Check returns nil when every configured probe passes.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var errs []error
	if c.db != nil {
		if err := c.db.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Watch runs Check every interval and publishes the result on srv for the overall server ("")
// until ctx is done. Status changes are logged.
func (c *Checker) Watch(ctx context.Context, srv *grpchealth.Server, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		err := c.Check(ctx)
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			if err != nil {
				log.Warn("health: not serving", "error", err)
			} else {
				log.Info("health: serving")
			}
			last = status
		}
		srv.SetServingStatus("", status)
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}
