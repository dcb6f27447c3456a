package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func status(t *testing.T, srv *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestCheck(t *testing.T) {
	log, _ := test.NewNullLogger()
	tests := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		wantErr bool
	}{
		{"nil probes", nil, nil, false},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, false},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, true},
		{"policy unusable", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("eval role policy: undefined")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewChecker(tt.pinger, tt.policy, log).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdate_SetsServingStatus(t *testing.T) {
	log, hook := test.NewNullLogger()
	srv := health.NewServer()
	pinger := &mockPinger{}
	c := NewChecker(pinger, nil, log)

	if got := c.Update(context.Background(), srv, "pmt.v1.TaskService"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Update = %v, want SERVING", got)
	}
	if got := status(t, srv, "pmt.v1.TaskService"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("service status = %v, want SERVING", got)
	}

	pinger.pingErr = errors.New("connection refused")
	c.Update(context.Background(), srv, "pmt.v1.TaskService")
	if got := status(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall status = %v, want NOT_SERVING", got)
	}
	if hook.LastEntry() == nil {
		t.Error("expected a warning to be logged")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	srv := health.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewChecker(nil, nil, log).Run(ctx, srv, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := status(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", got)
	}
}
