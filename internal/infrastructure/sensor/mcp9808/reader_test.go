package mcp9808

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

var probeOK = i2ctest.IO{Addr: DefaultAddr, W: []byte{regManufacturerID}, R: []byte{0x00, 0x54}}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDecodeCelsius(t *testing.T) {
	tests := []struct {
		raw  uint16
		want float64
	}{
		{0xC165, 22.3125},
		{0x0165, 22.3125},
		{0x0190, 25},
		{0x0000, 0},
		{0x1FF0, -1},
		{0x1E70, -25},
		{0x07D0, 125},
	}
	for _, tt := range tests {
		if got := decodeCelsius(tt.raw); got != tt.want {
			t.Errorf("decodeCelsius(%#04x) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestReader_Read(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			probeOK,
			{Addr: DefaultAddr, W: []byte{regAmbient}, R: []byte{0xC1, 0x65}},
			{Addr: DefaultAddr, W: []byte{regAmbient}, R: []byte{0x1F, 0xF0}},
		},
		DontPanic: true,
	}

	r, err := New(bus, Config{MinInterval: time.Millisecond}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := r.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if first.Celsius() != 22.3125 {
		t.Errorf("Read() = %v, want 22.3125", first.Celsius())
	}

	second, err := r.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if second.Celsius() != -1 {
		t.Errorf("Read() = %v, want -1", second.Celsius())
	}

	if err := bus.Close(); err != nil {
		t.Errorf("playback not fully consumed: %v", err)
	}
}

func TestNew_RejectsWrongManufacturer(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: DefaultAddr, W: []byte{regManufacturerID}, R: []byte{0x12, 0x34}}},
		DontPanic: true,
	}

	_, err := New(bus, Config{}, quietLogger())
	if !errors.Is(err, ErrDeviceNotPresent) {
		t.Errorf("New() error = %v, want %v", err, ErrDeviceNotPresent)
	}
}

func TestNew_CustomAddress(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: 0x1C, W: []byte{regManufacturerID}, R: []byte{0x00, 0x54}}},
		DontPanic: true,
	}

	if _, err := New(bus, Config{Addr: 0x1C}, quietLogger()); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

type brokenBus struct {
	probed bool
}

func (b *brokenBus) String() string                    { return "broken" }
func (b *brokenBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *brokenBus) Tx(addr uint16, w, r []byte) error {
	if !b.probed {
		b.probed = true
		copy(r, []byte{0x00, 0x54})
		return nil
	}
	return errors.New("remote I/O error")
}

func TestReader_BusErrorIsSensorReadError(t *testing.T) {
	r, err := New(&brokenBus{}, Config{MinInterval: time.Millisecond}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = r.Read(context.Background())

	var readErr *publisher.SensorReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("Read() error = %v, want *publisher.SensorReadError", err)
	}
	if readErr.Sensor != "broken(24)" {
		t.Errorf("Sensor = %q, want %q", readErr.Sensor, "broken(24)")
	}
}

func TestReader_SpacesBusTransactions(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			probeOK,
			{Addr: DefaultAddr, W: []byte{regAmbient}, R: []byte{0x01, 0x90}},
			{Addr: DefaultAddr, W: []byte{regAmbient}, R: []byte{0x01, 0x90}},
		},
		DontPanic: true,
	}

	const spacing = 50 * time.Millisecond
	r, err := New(bus, Config{MinInterval: spacing}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := r.Read(context.Background()); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < spacing-10*time.Millisecond {
		t.Errorf("two reads took %v, want at least ~%v", elapsed, spacing)
	}
}

func TestReader_CancelledWaitIsSensorReadError(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			probeOK,
			{Addr: DefaultAddr, W: []byte{regAmbient}, R: []byte{0x01, 0x90}},
		},
		DontPanic: true,
	}

	r, err := New(bus, Config{MinInterval: time.Hour}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := r.Read(context.Background()); err != nil {
		t.Fatalf("first Read() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = r.Read(ctx)
	var readErr *publisher.SensorReadError
	if !errors.As(err, &readErr) {
		t.Errorf("Read() error = %v, want *publisher.SensorReadError", err)
	}
}
