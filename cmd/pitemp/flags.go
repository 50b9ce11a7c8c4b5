package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseConfig builds the configuration from defaults, an optional YAML file
// given with -config, and command line flags. Flags set explicitly on the
// command line win over the file.
func ParseConfig(args []string, output io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("pitemp", flag.ContinueOnError)
	fs.SetOutput(output)
	configPath := fs.String("config", "", "path to a YAML config file (optional)")
	bindFlags(fs, &cfg)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath == "" {
		return cfg, nil
	}

	fileCfg := DefaultConfig()
	if err := loadFile(*configPath, &fileCfg); err != nil {
		return Config{}, err
	}

	overlay := flag.NewFlagSet("pitemp", flag.ContinueOnError)
	overlay.SetOutput(io.Discard)
	bindFlags(overlay, &fileCfg)

	var replayErr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || replayErr != nil {
			return
		}
		if err := overlay.Set(f.Name, f.Value.String()); err != nil {
			replayErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if replayErr != nil {
		return Config{}, replayErr
	}

	return fileCfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// bindFlags registers every option on fs, using the current values in cfg
// as defaults.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	// ---- device ----
	fs.StringVar(
		&cfg.Device.ID,
		"device.id",
		cfg.Device.ID,
		"device identifier written into every payload",
	)

	fs.StringVar(
		&cfg.Device.Topic,
		"device.topic",
		cfg.Device.Topic,
		"MQTT topic shared by all destinations",
	)

	fs.DurationVar(
		&cfg.Device.Interval,
		"device.interval",
		cfg.Device.Interval,
		"time between the end of one publish and the next read",
	)

	// ---- sensor ----
	fs.StringVar(
		&cfg.Sensor.Kind,
		"sensor.kind",
		cfg.Sensor.Kind,
		"mcp9808 or host",
	)

	fs.StringVar(
		&cfg.Sensor.Bus,
		"sensor.bus",
		cfg.Sensor.Bus,
		"i2c bus name (empty selects the first bus)",
	)

	fs.UintVar(
		&cfg.Sensor.Address,
		"sensor.address",
		cfg.Sensor.Address,
		"mcp9808 i2c address",
	)

	fs.DurationVar(
		&cfg.Sensor.MinInterval,
		"sensor.min-interval",
		cfg.Sensor.MinInterval,
		"minimum spacing between i2c reads",
	)

	fs.StringVar(
		&cfg.Sensor.HostKey,
		"sensor.host-key",
		cfg.Sensor.HostKey,
		"host sensor key to match when sensor.kind=host",
	)

	// ---- cloud ----
	fs.BoolVar(
		&cfg.Cloud.Enabled,
		"cloud.enabled",
		cfg.Cloud.Enabled,
		"publish to the cloud broker over mutual TLS",
	)

	fs.StringVar(
		&cfg.Cloud.Endpoint,
		"cloud.endpoint",
		cfg.Cloud.Endpoint,
		"cloud broker host name",
	)

	fs.IntVar(
		&cfg.Cloud.Port,
		"cloud.port",
		cfg.Cloud.Port,
		"cloud broker port",
	)

	fs.StringVar(
		&cfg.Cloud.ClientID,
		"cloud.client-id",
		cfg.Cloud.ClientID,
		"MQTT client id on the cloud broker",
	)

	fs.StringVar(
		&cfg.Cloud.TLS.CACertPath,
		"cloud.tls.ca",
		cfg.Cloud.TLS.CACertPath,
		"path to root CA certificate (PEM)",
	)

	fs.StringVar(
		&cfg.Cloud.TLS.CertPath,
		"cloud.tls.cert",
		cfg.Cloud.TLS.CertPath,
		"path to device certificate (PEM)",
	)

	fs.StringVar(
		&cfg.Cloud.TLS.KeyPath,
		"cloud.tls.key",
		cfg.Cloud.TLS.KeyPath,
		"path to device private key (PEM)",
	)

	fs.StringVar(
		&cfg.Cloud.TLS.ServerName,
		"cloud.tls.server-name",
		cfg.Cloud.TLS.ServerName,
		"TLS server name override (optional)",
	)

	fs.BoolVar(
		&cfg.Cloud.TLS.InsecureSkipVerify,
		"cloud.tls.insecure",
		cfg.Cloud.TLS.InsecureSkipVerify,
		"skip TLS verification (DEV ONLY)",
	)

	fs.DurationVar(
		&cfg.Cloud.KeepAlive,
		"cloud.keep-alive",
		cfg.Cloud.KeepAlive,
		"MQTT keep-alive",
	)

	fs.DurationVar(
		&cfg.Cloud.Backoff.Min,
		"cloud.backoff.min",
		cfg.Cloud.Backoff.Min,
		"first reconnect delay",
	)

	fs.DurationVar(
		&cfg.Cloud.Backoff.Max,
		"cloud.backoff.max",
		cfg.Cloud.Backoff.Max,
		"maximum reconnect delay",
	)

	fs.DurationVar(
		&cfg.Cloud.Backoff.Stable,
		"cloud.backoff.stable",
		cfg.Cloud.Backoff.Stable,
		"uptime after which reconnect delays start over",
	)

	fs.DurationVar(
		&cfg.Cloud.ConnectTimeout,
		"cloud.connect-timeout",
		cfg.Cloud.ConnectTimeout,
		"connect and disconnect timeout",
	)

	fs.DurationVar(
		&cfg.Cloud.OperationTimeout,
		"cloud.operation-timeout",
		cfg.Cloud.OperationTimeout,
		"publish acknowledgement timeout",
	)

	// ---- mirror ----
	fs.BoolVar(
		&cfg.Mirror.Enabled,
		"mirror.enabled",
		cfg.Mirror.Enabled,
		"publish to the plaintext mirror broker",
	)

	fs.StringVar(
		&cfg.Mirror.Host,
		"mirror.host",
		cfg.Mirror.Host,
		"mirror broker host",
	)

	fs.IntVar(
		&cfg.Mirror.Port,
		"mirror.port",
		cfg.Mirror.Port,
		"mirror broker port",
	)

	fs.StringVar(
		&cfg.Mirror.ClientID,
		"mirror.client-id",
		cfg.Mirror.ClientID,
		"MQTT client id on the mirror broker",
	)

	fs.DurationVar(
		&cfg.Mirror.KeepAlive,
		"mirror.keep-alive",
		cfg.Mirror.KeepAlive,
		"MQTT keep-alive",
	)

	fs.DurationVar(
		&cfg.Mirror.ConnectTimeout,
		"mirror.connect-timeout",
		cfg.Mirror.ConnectTimeout,
		"connect and disconnect timeout",
	)

	fs.DurationVar(
		&cfg.Mirror.OperationTimeout,
		"mirror.operation-timeout",
		cfg.Mirror.OperationTimeout,
		"publish timeout",
	)

	// ---- observability ----
	fs.StringVar(
		&cfg.Observability.HTTPAddress,
		"observability.http-address",
		cfg.Observability.HTTPAddress,
		"listen address for /healthz and /metrics (empty disables)",
	)

	fs.StringVar(
		&cfg.Observability.GRPCAddress,
		"observability.grpc-address",
		cfg.Observability.GRPCAddress,
		"listen address for the gRPC health service (empty disables)",
	)

	fs.DurationVar(
		&cfg.Observability.ShutdownTimeout,
		"observability.shutdown-timeout",
		cfg.Observability.ShutdownTimeout,
		"server shutdown timeout",
	)

	// ---- log ----
	fs.StringVar(
		&cfg.Log.Level,
		"log.level",
		cfg.Log.Level,
		"debug, info, warn or error",
	)

	fs.StringVar(
		&cfg.Log.Format,
		"log.format",
		cfg.Log.Format,
		"text or json",
	)
}
