package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kvoloboi/pitemp/internal/application/common"
	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/kvoloboi/pitemp/internal/domain"
	"github.com/kvoloboi/pitemp/internal/infrastructure/broker/plain"
	"github.com/kvoloboi/pitemp/internal/infrastructure/broker/secure"
	"github.com/kvoloboi/pitemp/internal/infrastructure/sensor/hostthermal"
	"github.com/kvoloboi/pitemp/internal/infrastructure/sensor/mcp9808"
	"github.com/kvoloboi/pitemp/internal/infrastructure/tlsconfig"
	transportgrpc "github.com/kvoloboi/pitemp/internal/infrastructure/transport/grpc"
	transporthttp "github.com/kvoloboi/pitemp/internal/infrastructure/transport/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("pitemp stopped", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := ParseConfig(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	secure.RouteLibraryLogs(logger)

	device, err := domain.NewDeviceID(cfg.Device.ID)
	if err != nil {
		return err
	}

	sensor, closeSensor, err := openSensor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSensor()

	clients, err := createClients(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- Connect every destination; any failure is fatal ----
	for i, c := range clients {
		if err := c.Connect(ctx); err != nil {
			closeClients(clients[:i+1], logger)
			return err
		}
	}
	defer closeClients(clients, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters := publisher.NewCounters(registry)

	stopServers, err := startServers(ctx, cfg, registry, clients, logger)
	if err != nil {
		return err
	}
	defer stopServers()

	loop := publisher.NewPublishLoop(
		sensor,
		clients,
		publisher.LoopConfig{
			Topic:    cfg.Device.Topic,
			Device:   device,
			Interval: cfg.Device.Interval,
		},
		logger,
		counters,
	)

	loop.Run(ctx)

	logger.Info("shutdown signal received")
	return nil
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log.format: %q", format)
	}
}

func openSensor(cfg Config, logger *slog.Logger) (publisher.SensorReader, func(), error) {
	switch cfg.Sensor.Kind {
	case SensorMCP9808:
		r, err := mcp9808.Open(mcp9808.Config{
			Bus:         cfg.Sensor.Bus,
			Addr:        uint16(cfg.Sensor.Address),
			MinInterval: cfg.Sensor.MinInterval,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sensor: %w", err)
		}
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Warn("failed to close sensor", "err", err)
			}
		}, nil
	case SensorHost:
		return hostthermal.New(cfg.Sensor.HostKey), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor kind: %s", cfg.Sensor.Kind)
	}
}

func createClients(cfg Config, logger *slog.Logger) ([]publisher.BrokerClient, error) {
	var clients []publisher.BrokerClient

	if cfg.Cloud.Enabled {
		tls, err := tlsconfig.ClientTLSConfig(cfg.Cloud.TLS)
		if err != nil {
			return nil, fmt.Errorf("setup tls config: %w", err)
		}

		c, err := secure.New(secure.Config{
			Name:             "cloud",
			Endpoint:         cfg.Cloud.Endpoint,
			Port:             cfg.Cloud.Port,
			ClientID:         cfg.Cloud.ClientID,
			TLS:              tls,
			KeepAlive:        cfg.Cloud.KeepAlive,
			ConnectTimeout:   cfg.Cloud.ConnectTimeout,
			OperationTimeout: cfg.Cloud.OperationTimeout,
			Backoff:          common.NewBackoff(cfg.Cloud.Backoff.Min, cfg.Cloud.Backoff.Max),
			StableAfter:      cfg.Cloud.Backoff.Stable,
		}, logger)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	if cfg.Mirror.Enabled {
		c, err := plain.New(plain.Config{
			Name:             "mirror",
			Host:             cfg.Mirror.Host,
			Port:             cfg.Mirror.Port,
			ClientID:         cfg.Mirror.ClientID,
			KeepAlive:        cfg.Mirror.KeepAlive,
			ConnectTimeout:   cfg.Mirror.ConnectTimeout,
			OperationTimeout: cfg.Mirror.OperationTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	return clients, nil
}

func closeClients(clients []publisher.BrokerClient, logger *slog.Logger) {
	for _, c := range clients {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close broker client", "destination", c.Name(), "err", err)
		}
	}
}

// startServers launches the optional observability servers and returns a
// function that shuts them down.
func startServers(
	ctx context.Context,
	cfg Config,
	registry *prometheus.Registry,
	clients []publisher.BrokerClient,
	logger *slog.Logger,
) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if addr := cfg.Observability.HTTPAddress; addr != "" {
		srv, err := transporthttp.NewServer(addr, registry, clients, logger)
		if err != nil {
			return nil, fmt.Errorf("start http server: %w", err)
		}
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error("http server failed", "err", err)
			}
		}()
		stops = append(stops, func() { srv.Shutdown(cfg.Observability.ShutdownTimeout) })
	}

	if addr := cfg.Observability.GRPCAddress; addr != "" {
		srv, err := transportgrpc.NewHealthServer(addr, clients, logger)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("start grpc server: %w", err)
		}
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error("grpc server failed", "err", err)
			}
		}()
		go srv.Watch(ctx, transportgrpc.DefaultWatchInterval)
		stops = append(stops, func() { srv.Shutdown(cfg.Observability.ShutdownTimeout) })
	}

	return stopAll, nil
}
