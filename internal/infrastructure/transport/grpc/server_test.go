package transportgrpc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubClient struct {
	name string
	up   atomic.Bool
}

func (s *stubClient) Name() string                                  { return s.name }
func (s *stubClient) Connect(context.Context) error                 { return nil }
func (s *stubClient) Publish(context.Context, string, []byte) error { return nil }
func (s *stubClient) IsConnected() bool                             { return s.up.Load() }
func (s *stubClient) Close() error                                  { return nil }

func TestHealthServer_ReportsDestinations(t *testing.T) {
	cloud := &stubClient{name: "cloud"}
	cloud.up.Store(true)
	mirror := &stubClient{name: "mirror"}

	srv, err := NewHealthServer("127.0.0.1:0", []publisher.BrokerClient{cloud, mirror}, nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	go func() { _ = srv.Run() }()
	t.Cleanup(func() { srv.Shutdown(time.Second) })

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(ServiceName("cloud")); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("cloud = %v, want SERVING", got)
	}
	if got := check(ServiceName("mirror")); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("mirror = %v, want NOT_SERVING", got)
	}
	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall = %v, want NOT_SERVING", got)
	}

	mirror.up.Store(true)
	srv.Update()

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall after reconnect = %v, want SERVING", got)
	}
}

func TestHealthServer_WatchStopsOnCancel(t *testing.T) {
	srv, err := NewHealthServer("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(time.Second) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestServiceName(t *testing.T) {
	if got := ServiceName("cloud"); got != "pitemp.cloud" {
		t.Errorf("ServiceName() = %q, want %q", got, "pitemp.cloud")
	}
}
