package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a self-signed certificate and key and returns their paths.
func writeSelfSigned(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "raspberrypi-temp-sensor"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	certPath = filepath.Join(dir, "device.cert.pem")
	keyPath = filepath.Join(dir, "device.private.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return certPath, keyPath
}

func TestValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("Validate() on empty config = nil, want error")
	}
	if err := (Config{CACertPath: "ca", CertPath: "c", KeyPath: "k"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir)

	cfg, err := ClientTLSConfig(Config{
		CACertPath: certPath,
		CertPath:   certPath,
		KeyPath:    keyPath,
		ServerName: "example-ats.iot.us-east-1.amazonaws.com",
	})
	if err != nil {
		t.Fatalf("ClientTLSConfig() error = %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs = nil")
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want %x", cfg.MinVersion, tls.VersionTLS12)
	}
	if cfg.ServerName != "example-ats.iot.us-east-1.amazonaws.com" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
}

func TestClientTLSConfig_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir)

	_, err := ClientTLSConfig(Config{
		CACertPath: filepath.Join(dir, "missing-ca.pem"),
		CertPath:   certPath,
		KeyPath:    keyPath,
	})
	if err == nil {
		t.Error("ClientTLSConfig() with missing CA = nil, want error")
	}

	_, err = ClientTLSConfig(Config{
		CACertPath: certPath,
		CertPath:   filepath.Join(dir, "missing.pem"),
		KeyPath:    keyPath,
	})
	if err == nil {
		t.Error("ClientTLSConfig() with missing cert = nil, want error")
	}
}

func TestClientTLSConfig_BadCA(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir)
	caPath := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caPath, []byte("not a pem"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := ClientTLSConfig(Config{CACertPath: caPath, CertPath: certPath, KeyPath: keyPath}); err == nil {
		t.Error("ClientTLSConfig() with garbage CA = nil, want error")
	}
}
