package cert_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/ghbkp/internal/cert"
	"github.com/flemzord/ghbkp/internal/cert/certtest"
)

func TestLoadCAPool(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)
	pool, err := cert.LoadCAPool(pki.CAFile)
	if err != nil {
		t.Fatalf("LoadCAPool: %v", err)
	}
	if pool == nil {
		t.Fatal("pool is nil")
	}
}

func TestLoadCAPool_Missing(t *testing.T) {
	t.Parallel()

	_, err := cert.LoadCAPool(filepath.Join(t.TempDir(), "nope.pem"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapping os.ErrNotExist", err)
	}
}

func TestLoadCAPool_NoCertificates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := cert.LoadCAPool(path)
	if !errors.Is(err, cert.ErrNoCertificates) {
		t.Errorf("err = %v, want ErrNoCertificates", err)
	}
}

func TestClientTLSConfig(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)

	t.Run("ca only", func(t *testing.T) {
		t.Parallel()
		tc, err := cert.ClientTLSConfig(cert.TLSConfig{CAFile: pki.CAFile})
		if err != nil {
			t.Fatalf("ClientTLSConfig: %v", err)
		}
		if len(tc.Certificates) != 0 {
			t.Errorf("certificates = %d, want 0", len(tc.Certificates))
		}
		if tc.MinVersion != tls.VersionTLS12 {
			t.Errorf("MinVersion = %x, want TLS 1.2", tc.MinVersion)
		}
	})

	t.Run("mutual", func(t *testing.T) {
		t.Parallel()
		tc, err := cert.ClientTLSConfig(cert.TLSConfig{
			CAFile:   pki.CAFile,
			CertFile: pki.ClientCert,
			KeyFile:  pki.ClientKey,
		})
		if err != nil {
			t.Fatalf("ClientTLSConfig: %v", err)
		}
		if len(tc.Certificates) != 1 {
			t.Errorf("certificates = %d, want 1", len(tc.Certificates))
		}
	})

	t.Run("half configured", func(t *testing.T) {
		t.Parallel()
		_, err := cert.ClientTLSConfig(cert.TLSConfig{CAFile: pki.CAFile, CertFile: pki.ClientCert})
		if err == nil {
			t.Error("expected error when key is missing")
		}
	})

	t.Run("no ca", func(t *testing.T) {
		t.Parallel()
		if _, err := cert.ClientTLSConfig(cert.TLSConfig{}); err == nil {
			t.Error("expected error without CA bundle")
		}
	})
}

func TestHTTPClient_MutualTLS(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)
	srv := pki.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	}), true)

	get := func(c *http.Client) (string, error) {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
		resp, err := c.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		return string(b), err
	}

	mtls, err := cert.HTTPClient(cert.TLSConfig{
		CAFile:   pki.CAFile,
		CertFile: pki.ClientCert,
		KeyFile:  pki.ClientKey,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTPClient: %v", err)
	}
	body, err := get(mtls)
	if err != nil {
		t.Fatalf("mutual TLS request: %v", err)
	}
	if body != "ghbkp" {
		t.Errorf("peer CN = %q, want ghbkp", body)
	}

	caOnly, err := cert.HTTPClient(cert.TLSConfig{CAFile: pki.CAFile}, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTPClient: %v", err)
	}
	if _, err := get(caOnly); err == nil {
		t.Error("expected handshake failure without client certificate")
	}

	if _, err := get(&http.Client{Timeout: 5 * time.Second}); err == nil {
		t.Error("expected verification failure with system roots")
	}
}
