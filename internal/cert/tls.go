// Package cert loads the TLS material used to talk to services fronted by a
// private certificate authority, optionally with a client certificate for
// mutual TLS.
package cert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrNoCertificates is returned when a CA bundle contains no usable PEM
// certificate.
var ErrNoCertificates = errors.New("cert: no certificates found in CA bundle")

// TLSConfig names the PEM files that make up a client TLS setup.
type TLSConfig struct {
	// CAFile is the private CA bundle used to verify servers. Required.
	CAFile string

	// CertFile and KeyFile hold the client certificate for mutual TLS.
	// Both or neither must be set.
	CertFile string
	KeyFile  string
}

// MutualTLS reports whether a client certificate is configured.
func (c TLSConfig) MutualTLS() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// LoadCAPool reads a PEM bundle into a fresh certificate pool. The system
// roots are not included: only servers signed by the bundle are trusted.
func LoadCAPool(caFile string) (*x509.CertPool, error) {
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("cert: reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, caFile)
	}
	return pool, nil
}

// ClientTLSConfig builds a *tls.Config trusting only cfg.CAFile and, when
// configured, presenting the client certificate.
func ClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" {
		return nil, errors.New("cert: CA bundle path is required")
	}
	pool, err := LoadCAPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}

	tc := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	if cfg.MutualTLS() {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.New("cert: client certificate and key must both be set")
		}
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("cert: loading client key pair: %w", err)
		}
		tc.Certificates = []tls.Certificate{pair}
	}

	return tc, nil
}

// HTTPClient returns an *http.Client using ClientTLSConfig(cfg).
func HTTPClient(cfg TLSConfig, timeout time.Duration) (*http.Client, error) {
	tc, err := ClientTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tc
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
