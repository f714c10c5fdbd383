package health

import (
	"context"
	"errors"
	"testing"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		db      Pinger
		policy  PolicyChecker
		wantErr bool
	}{
		{"no probes", nil, nil, false},
		{"db ok", &mockPinger{}, nil, false},
		{"db down", &mockPinger{pingErr: errors.New("connection refused")}, nil, true},
		{"policy ok", nil, &mockPolicyChecker{}, false},
		{"policy broken", nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, true},
		{"both ok", &mockPinger{}, &mockPolicyChecker{}, false},
		{"policy fails with db ok", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("policy error")}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewChecker(tc.db, tc.policy, 0).Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestWatch_PublishesStatus(t *testing.T) {
	srv := grpchealth.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pinger := &mockPinger{pingErr: errors.New("down")}
	done := make(chan struct{})
	go func() {
		NewChecker(pinger, nil, time.Second).Watch(ctx, srv, time.Hour, nil)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never became NOT_SERVING (resp %v, err %v)", resp, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
