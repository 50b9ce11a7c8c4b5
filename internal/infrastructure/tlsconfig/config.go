package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Config locates the PEM files for mutual TLS against a broker.
type Config struct {
	CACertPath         string `yaml:"ca"`
	CertPath           string `yaml:"cert"`
	KeyPath            string `yaml:"key"`
	InsecureSkipVerify bool   `yaml:"insecure"`
	ServerName         string `yaml:"server-name"`
}

func (c Config) Validate() error {
	if c.CACertPath == "" || c.CertPath == "" || c.KeyPath == "" {
		return fmt.Errorf("tls cert paths are not fully set")
	}
	return nil
}

func loadCertPool(caPath string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read ca cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to append CA cert")
	}

	return pool, nil
}

// ClientTLSConfig loads the client key pair and the root CA. An empty
// ServerName lets the dialer derive it from the broker host.
func ClientTLSConfig(cfg Config) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	caPool, err := loadCertPool(cfg.CACertPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            caPool,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}, nil
}
