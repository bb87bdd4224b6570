// Package certcheck reports the validity and expiry of the certificate a
// domain is serving.
package certcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"
)

// Certificate describes the leaf certificate observed for a host. Valid is
// false when the chain does not verify for the host name; Reason says why.
type Certificate struct {
	Host      string    `json:"host"`
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// DaysUntilExpiry is the whole number of days left, negative once expired.
func (c *Certificate) DaysUntilExpiry(now time.Time) int {
	return int(c.NotAfter.Sub(now).Hours() / 24)
}

// Checker returns an error only when the certificate could not be observed
// at all (network failure, timeout). An observed but invalid certificate is
// reported through Certificate.Valid.
type Checker interface {
	Check(ctx context.Context, host string) (*Certificate, error)
}

// TLSChecker dials the host on port 443 and verifies the served chain.
type TLSChecker struct {
	Timeout time.Duration
	// RootCAs overrides the system pool.
	RootCAs *x509.CertPool
	// Addr maps a host name to the address dialed. Defaults to host:443.
	Addr func(host string) string
	Now  func() time.Time
}

func NewTLSChecker(timeout time.Duration) *TLSChecker {
	return &TLSChecker{Timeout: timeout}
}

var _ Checker = (*TLSChecker)(nil)

func (c *TLSChecker) Check(ctx context.Context, host string) (*Certificate, error) {
	addr := net.JoinHostPort(host, "443")
	if c.Addr != nil {
		addr = c.Addr(host)
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// Verification happens below so that a bad chain is distinguishable from
	// a failed connection.
	dialer := &tls.Dialer{Config: &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS12,
	}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s: %w", host, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("tls dial %s: no peer certificates", host)
	}
	return verify(host, state.PeerCertificates, c.RootCAs, now), nil
}

func verify(host string, chain []*x509.Certificate, roots *x509.CertPool, now time.Time) *Certificate {
	leaf := chain[0]
	cert := &Certificate{
		Host:      host,
		Issuer:    leaf.Issuer.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
	}

	intermediates := x509.NewCertPool()
	for _, ic := range chain[1:] {
		intermediates.AddCert(ic)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	if err != nil {
		cert.Reason = reason(err)
		return cert
	}
	cert.Valid = true
	return cert
}

func reason(err error) string {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return "certificate expired"
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return "certificate does not cover host"
	}
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		return "untrusted issuer"
	}
	return err.Error()
}
