package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kvoloboi/pitemp/internal/domain"
	"github.com/kvoloboi/pitemp/internal/infrastructure/tlsconfig"
)

const (
	SensorMCP9808 = "mcp9808"
	SensorHost    = "host"
)

type Config struct {
	Device struct {
		ID       string        `yaml:"id"`
		Topic    string        `yaml:"topic"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"device"`
	Sensor struct {
		Kind        string        `yaml:"kind"`
		Bus         string        `yaml:"bus"`
		Address     uint          `yaml:"address"`
		MinInterval time.Duration `yaml:"min-interval"`
		HostKey     string        `yaml:"host-key"`
	} `yaml:"sensor"`
	Cloud struct {
		Enabled   bool             `yaml:"enabled"`
		Endpoint  string           `yaml:"endpoint"`
		Port      int              `yaml:"port"`
		ClientID  string           `yaml:"client-id"`
		TLS       tlsconfig.Config `yaml:"tls"`
		KeepAlive time.Duration    `yaml:"keep-alive"`
		Backoff   struct {
			Min    time.Duration `yaml:"min"`
			Max    time.Duration `yaml:"max"`
			Stable time.Duration `yaml:"stable"`
		} `yaml:"backoff"`
		ConnectTimeout   time.Duration `yaml:"connect-timeout"`
		OperationTimeout time.Duration `yaml:"operation-timeout"`
	} `yaml:"cloud"`
	Mirror struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		ClientID         string        `yaml:"client-id"`
		KeepAlive        time.Duration `yaml:"keep-alive"`
		ConnectTimeout   time.Duration `yaml:"connect-timeout"`
		OperationTimeout time.Duration `yaml:"operation-timeout"`
	} `yaml:"mirror"`
	Observability struct {
		HTTPAddress     string        `yaml:"http-address"`
		GRPCAddress     string        `yaml:"grpc-address"`
		ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	} `yaml:"observability"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func DefaultConfig() Config {
	var cfg Config

	cfg.Device.ID = "raspberrypi-temp-sensor"
	cfg.Device.Topic = "raspberrypi/temperature"
	cfg.Device.Interval = 5 * time.Second

	cfg.Sensor.Kind = SensorMCP9808
	cfg.Sensor.Address = 0x18
	cfg.Sensor.MinInterval = 250 * time.Millisecond
	cfg.Sensor.HostKey = "cpu_thermal"

	cfg.Cloud.Enabled = true
	cfg.Cloud.Port = 8883
	cfg.Cloud.ClientID = "raspberrypi-temp-sensor"
	cfg.Cloud.TLS = tlsconfig.Config{
		CACertPath: "certs/AmazonRootCA1.pem",
		CertPath:   "certs/device.pem.crt",
		KeyPath:    "certs/private.pem.key",
	}
	cfg.Cloud.KeepAlive = 30 * time.Second
	cfg.Cloud.Backoff.Min = time.Second
	cfg.Cloud.Backoff.Max = 32 * time.Second
	cfg.Cloud.Backoff.Stable = 20 * time.Second
	cfg.Cloud.ConnectTimeout = 10 * time.Second
	cfg.Cloud.OperationTimeout = 5 * time.Second

	cfg.Mirror.Port = 1883
	cfg.Mirror.ClientID = "raspberrypi-ec2-mirror"
	cfg.Mirror.KeepAlive = 60 * time.Second
	cfg.Mirror.ConnectTimeout = 10 * time.Second
	cfg.Mirror.OperationTimeout = 5 * time.Second

	cfg.Observability.ShutdownTimeout = 5 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

func (c Config) Validate() error {
	if _, err := domain.NewDeviceID(c.Device.ID); err != nil {
		return fmt.Errorf("device.id: %w", err)
	}

	if c.Device.Topic == "" {
		return errors.New("device.topic must not be empty")
	}

	if strings.ContainsAny(c.Device.Topic, "+#") {
		return fmt.Errorf("device.topic %q must not contain wildcards", c.Device.Topic)
	}

	if c.Device.Interval <= 0 {
		return errors.New("device.interval must be > 0")
	}

	switch c.Sensor.Kind {
	case SensorMCP9808:
		if c.Sensor.Address == 0 || c.Sensor.Address > 0x7F {
			return fmt.Errorf("sensor.address %#x is not a 7-bit i2c address", c.Sensor.Address)
		}
		if c.Sensor.MinInterval < 0 {
			return errors.New("sensor.min-interval must be >= 0")
		}
	case SensorHost:
	default:
		return fmt.Errorf("unsupported sensor.kind: %q", c.Sensor.Kind)
	}

	if !c.Cloud.Enabled && !c.Mirror.Enabled {
		return errors.New("at least one of cloud.enabled or mirror.enabled must be set")
	}

	if c.Cloud.Enabled {
		if err := c.validateCloud(); err != nil {
			return err
		}
	}

	if c.Mirror.Enabled {
		if err := c.validateMirror(); err != nil {
			return err
		}
	}

	if c.Observability.ShutdownTimeout <= 0 {
		return errors.New("observability.shutdown-timeout must be > 0")
	}

	return nil
}

func (c Config) validateCloud() error {
	if c.Cloud.Endpoint == "" {
		return errors.New("cloud.endpoint is required")
	}

	if err := validatePort("cloud.port", c.Cloud.Port); err != nil {
		return err
	}

	if c.Cloud.ClientID == "" {
		return errors.New("cloud.client-id is required")
	}

	if err := c.Cloud.TLS.Validate(); err != nil {
		return fmt.Errorf("cloud.tls: %w", err)
	}

	if c.Cloud.KeepAlive < time.Second {
		return errors.New("cloud.keep-alive must be >= 1s")
	}

	if c.Cloud.Backoff.Min <= 0 {
		return errors.New("cloud.backoff.min must be > 0")
	}

	if c.Cloud.Backoff.Max <= 0 {
		return errors.New("cloud.backoff.max must be > 0")
	}

	if c.Cloud.Backoff.Min > c.Cloud.Backoff.Max {
		return errors.New("cloud.backoff.min must be <= cloud.backoff.max")
	}

	if c.Cloud.Backoff.Stable <= 0 {
		return errors.New("cloud.backoff.stable must be > 0")
	}

	if c.Cloud.ConnectTimeout <= 0 {
		return errors.New("cloud.connect-timeout must be > 0")
	}

	if c.Cloud.OperationTimeout <= 0 {
		return errors.New("cloud.operation-timeout must be > 0")
	}

	return nil
}

func (c Config) validateMirror() error {
	if c.Mirror.Host == "" {
		return errors.New("mirror.host is required")
	}

	if err := validatePort("mirror.port", c.Mirror.Port); err != nil {
		return err
	}

	if c.Mirror.ClientID == "" {
		return errors.New("mirror.client-id is required")
	}

	if c.Mirror.KeepAlive < time.Second || c.Mirror.KeepAlive > 65535*time.Second {
		return errors.New("mirror.keep-alive must be between 1s and 65535s")
	}

	if c.Mirror.ConnectTimeout <= 0 {
		return errors.New("mirror.connect-timeout must be > 0")
	}

	if c.Mirror.OperationTimeout <= 0 {
		return errors.New("mirror.operation-timeout must be > 0")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range 1..65535", name, port)
	}
	return nil
}
