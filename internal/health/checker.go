// Package health reports readiness through the standard gRPC health service.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 3 * time.Second

// Pinger checks the database connection (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies the role policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker combines the readiness probes. A nil probe is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
	log    logrus.FieldLogger
}

// NewChecker returns a Checker.
func NewChecker(pinger Pinger, policy PolicyChecker, log logrus.FieldLogger) *Checker {
	return &Checker{pinger: pinger, policy: policy, log: log}
}

// Check runs every probe and returns the first failure.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Update runs Check once and sets the serving status of the overall server ("") and of each service.
func (c *Checker) Update(ctx context.Context, srv *health.Server, services ...string) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		c.log.WithError(err).Warn("health: not ready")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	srv.SetServingStatus("", st)
	for _, s := range services {
		srv.SetServingStatus(s, st)
	}
	return st
}

// Run updates srv every interval until ctx is done, then marks everything NOT_SERVING.
func (c *Checker) Run(ctx context.Context, srv *health.Server, interval time.Duration, services ...string) {
	c.Update(ctx, srv, services...)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			c.Update(ctx, srv, services...)
		}
	}
}
