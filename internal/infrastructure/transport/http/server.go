package transporthttp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes /healthz and /metrics.
type Server struct {
	server *http.Server
	lis    net.Listener
	logger *slog.Logger
}

func NewServer(
	addr string,
	gatherer prometheus.Gatherer,
	clients []publisher.BrokerClient,
	logger *slog.Logger,
) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	accessLog := slog.NewLogLogger(logger.Handler(), slog.LevelDebug).Writer()
	panicLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)

	handler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLog),
		handlers.PrintRecoveryStack(true),
	)(handlers.LoggingHandler(accessLog, NewRouter(gatherer, clients)))

	return &Server{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		lis:    lis,
		logger: logger,
	}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http observability server listening", "addr", s.Addr())

	if err := s.server.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown timed out; forcing close", "err", err)
		_ = s.server.Close()
		return
	}
	s.logger.Info("http observability server stopped")
}
