// Command sensorcheck performs a single sensor read and prints the result.
// It is meant for bring-up on a new board before running pitemp.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/kvoloboi/pitemp/internal/infrastructure/sensor/hostthermal"
	"github.com/kvoloboi/pitemp/internal/infrastructure/sensor/mcp9808"
)

func main() {
	kind := flag.String("sensor.kind", "mcp9808", "mcp9808 or host")
	bus := flag.String("sensor.bus", "", "i2c bus name (empty selects the first bus)")
	addr := flag.Uint("sensor.address", uint(mcp9808.DefaultAddr), "mcp9808 i2c address")
	hostKey := flag.String("sensor.host-key", hostthermal.DefaultKey, "host sensor key")
	timeout := flag.Duration("timeout", 5*time.Second, "read timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	celsius, err := readOnce(*kind, mcp9808.Config{Bus: *bus, Addr: uint16(*addr)}, *hostKey, *timeout, logger)
	if err != nil {
		logger.Error("sensor check failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("Temperature: %.2f °C\n", celsius)
}

func readOnce(kind string, cfg mcp9808.Config, hostKey string, timeout time.Duration, logger *slog.Logger) (float64, error) {
	var sensor publisher.SensorReader

	switch kind {
	case "mcp9808":
		r, err := mcp9808.Open(cfg, logger)
		if err != nil {
			return 0, err
		}
		defer r.Close()
		sensor = r
	case "host":
		sensor = hostthermal.New(hostKey)
	default:
		return 0, fmt.Errorf("unsupported sensor kind: %q", kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reading, err := sensor.Read(ctx)
	if err != nil {
		return 0, err
	}
	return reading.Celsius(), nil
}
