package transportgrpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const DefaultWatchInterval = time.Second

// ServiceName is the health service reported for one destination.
func ServiceName(destination string) string {
	return "pitemp." + destination
}

// HealthServer serves grpc.health.v1.Health. The overall service "" is
// SERVING only while every destination is connected.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	lis     net.Listener
	clients []publisher.BrokerClient
	logger  *slog.Logger
}

func NewHealthServer(
	addr string,
	clients []publisher.BrokerClient,
	logger *slog.Logger,
	opts ...grpc.ServerOption,
) (*HealthServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	self := &HealthServer{
		server:  grpcServer,
		health:  hs,
		lis:     lis,
		clients: clients,
		logger:  logger,
	}
	self.Update()

	return self, nil
}

func (s *HealthServer) Addr() string { return s.lis.Addr().String() }

// Update copies the current connection state into the health service.
func (s *HealthServer) Update() {
	status, healthy := publisher.ConnectionStatus(s.clients)

	for name, up := range status {
		s.health.SetServingStatus(ServiceName(name), servingStatus(up))
	}
	s.health.SetServingStatus("", servingStatus(healthy))
}

// Watch refreshes the health state every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Update()
		}
	}
}

func (s *HealthServer) Run() error {
	s.logger.Info("grpc health server listening", "addr", s.Addr())
	return s.server.Serve(s.lis)
}

func (s *HealthServer) Shutdown(timeout time.Duration) {
	s.logger.Info("initiating graceful shutdown of gRPC server")

	// Watchers see NOT_SERVING before the transport goes away.
	s.health.Shutdown()

	done := make(chan struct{})

	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(timeout):
		s.logger.Warn("graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}

func servingStatus(up bool) healthpb.HealthCheckResponse_ServingStatus {
	if up {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
