package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TemporalTLS builds the client TLS config for the Temporal frontend. It
// returns nil, nil for a plaintext connection. A CA alone enables server-
// verified TLS; a client cert and key must be set together.
func (c *Config) TemporalTLS() (*tls.Config, error) {
	hasCert, hasKey := c.TemporalTLSCert != "", c.TemporalTLSKey != ""
	if hasCert != hasKey {
		return nil, errors.New("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must be set together")
	}
	if !hasCert && c.TemporalTLSCACert == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.TemporalTLSServerName,
	}

	if hasCert {
		cert, err := tls.LoadX509KeyPair(c.TemporalTLSCert, c.TemporalTLSKey)
		if err != nil {
			return nil, fmt.Errorf("load temporal client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.TemporalTLSCACert != "" {
		roots, err := readCertPool(c.TemporalTLSCACert)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = roots
	}

	return tlsConfig, nil
}

func readCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read temporal CA cert: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates in temporal CA file %s", path)
	}
	return roots, nil
}
