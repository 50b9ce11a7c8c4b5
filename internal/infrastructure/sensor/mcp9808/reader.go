// Package mcp9808 reads the ambient temperature register of a Microchip
// MCP9808 on an I2C bus.
package mcp9808

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/kvoloboi/pitemp/internal/domain"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	DefaultAddr        uint16 = 0x18
	DefaultMinInterval        = 250 * time.Millisecond

	regAmbient        = 0x05
	regManufacturerID = 0x06

	manufacturerID = 0x0054
)

var ErrDeviceNotPresent = errors.New("mcp9808 not present")

type Config struct {
	Bus         string
	Addr        uint16
	MinInterval time.Duration
}

// Reader is a publisher.SensorReader backed by an MCP9808.
// Reads are spaced at least MinInterval apart so every sample comes from a
// completed conversion.
type Reader struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Open initialises the host drivers, opens the named bus ("" selects the
// first one) and probes the device.
func Open(cfg Config, logger *slog.Logger) (*Reader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	r, err := New(bus, cfg, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	r.bus = bus

	return r, nil
}

// New binds to a device on an already opened bus. The caller keeps
// ownership of the bus.
func New(bus i2c.Bus, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == 0 {
		cfg.Addr = DefaultAddr
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}

	r := &Reader{
		dev:     &i2c.Dev{Bus: bus, Addr: cfg.Addr},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		logger:  logger,
	}

	id, err := r.readRegister(regManufacturerID)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", r.dev, err)
	}
	if id != manufacturerID {
		return nil, fmt.Errorf("probe %s: manufacturer id %#04x: %w", r.dev, id, ErrDeviceNotPresent)
	}

	logger.Info("mcp9808 ready", "device", r.dev.String(), "min_interval", cfg.MinInterval)

	return r, nil
}

func (r *Reader) Read(ctx context.Context) (domain.Reading, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.Reading{}, r.fail(err)
	}

	raw, err := r.readRegister(regAmbient)
	if err != nil {
		return domain.Reading{}, r.fail(err)
	}

	reading, err := domain.NewReading(decodeCelsius(raw))
	if err != nil {
		return domain.Reading{}, r.fail(err)
	}

	return reading, nil
}

// Close releases the bus if this reader opened it.
func (r *Reader) Close() error {
	if r.bus == nil {
		return nil
	}
	return r.bus.Close()
}

func (r *Reader) readRegister(reg byte) (uint16, error) {
	var buf [2]byte
	if err := r.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (r *Reader) fail(err error) error {
	return &publisher.SensorReadError{Sensor: r.dev.String(), Err: err}
}

// decodeCelsius converts the ambient register: bits 15..13 are alarm
// flags, bit 12 is the sign, bits 11..0 are 1/16 °C steps.
func decodeCelsius(raw uint16) float64 {
	raw &= 0x1FFF
	c := float64(raw&0x0FFF) / 16
	if raw&0x1000 != 0 {
		c -= 256
	}
	return c
}
