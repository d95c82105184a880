package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/ghbkp/internal/auth"
	"github.com/flemzord/ghbkp/internal/cert"
	"github.com/flemzord/ghbkp/internal/cert/certtest"
	"github.com/flemzord/ghbkp/internal/fetch"
	"github.com/flemzord/ghbkp/internal/security"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		a          *auth.Static
		wantHeader string
		wantValue  string
	}{
		{"bearer", auth.NewBearer("ghp_x"), "Authorization", "Bearer ghp_x"},
		{"custom header", auth.NewHeaderToken("X-Api-Key", "k"), "X-Api-Key", "k"},
		{"default header", auth.NewHeaderToken("", "k"), auth.DefaultTokenHeader, "k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := tt.a.Headers(context.Background())
			if err != nil {
				t.Fatalf("Headers: %v", err)
			}
			if got := h.Get(tt.wantHeader); got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantHeader, got, tt.wantValue)
			}
		})
	}
}

func TestStatic_HeadersAreIndependent(t *testing.T) {
	t.Parallel()

	a := auth.NewBearer("tok")
	h1, _ := a.Headers(context.Background())
	h1.Set("Authorization", "tampered")
	h2, _ := a.Headers(context.Background())
	if h2.Get("Authorization") != "Bearer tok" {
		t.Error("mutating returned headers changed later results")
	}
}

// issuerServer runs a mutual-TLS issuance endpoint. respond decides the
// answer for each request.
func issuerServer(t *testing.T, pki *certtest.PKI, respond func(w http.ResponseWriter, audience string)) (string, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := pki.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Audience string `json:"audience"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		respond(w, body.Audience)
	}), true)
	return srv.URL + "/token", &calls
}

func mtlsClient(t *testing.T, pki *certtest.PKI) *fetch.Client {
	t.Helper()
	hc, err := cert.HTTPClient(cert.TLSConfig{
		CAFile:   pki.CAFile,
		CertFile: pki.ClientCert,
		KeyFile:  pki.ClientKey,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTPClient: %v", err)
	}
	return fetch.New(fetch.Config{HTTPClient: hc})
}

func TestIssuer_IssuesFreshTokenEveryCall(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)
	var n atomic.Int32
	url, calls := issuerServer(t, pki, func(w http.ResponseWriter, audience string) {
		if audience != "backup" {
			http.Error(w, "wrong audience", http.StatusForbidden)
			return
		}
		tok := "token-" + string(rune('a'+n.Add(1)-1))
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})

	store := security.NewCredentialStore()
	iss, err := auth.NewIssuer(auth.IssuerConfig{
		URL:         url,
		Audience:    "backup",
		Client:      mtlsClient(t, pki),
		Credentials: store,
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	h1, err := iss.Headers(context.Background())
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	h2, err := iss.Headers(context.Background())
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	if got := h1.Get(auth.DefaultTokenHeader); got != "token-a" {
		t.Errorf("first token = %q, want token-a", got)
	}
	if got := h2.Get(auth.DefaultTokenHeader); got != "token-b" {
		t.Errorf("second token = %q, want token-b", got)
	}
	if calls.Load() != 2 {
		t.Errorf("issuance calls = %d, want 2", calls.Load())
	}
	r := security.NewRedactor()
	r.Watch(store)
	if got := r.Redact("sent token-b"); got != "sent "+security.RedactPlaceholder {
		t.Errorf("latest issued token not redacted: %q", got)
	}
}

func TestIssuer_CustomHeader(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)
	url, _ := issuerServer(t, pki, func(w http.ResponseWriter, _ string) {
		_, _ = io.WriteString(w, `{"token":"abc"}`)
	})

	iss, err := auth.NewIssuer(auth.IssuerConfig{URL: url, Header: "Authorization", Client: mtlsClient(t, pki)})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	h, err := iss.Headers(context.Background())
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if h.Get("Authorization") != "abc" {
		t.Errorf("Authorization = %q, want abc", h.Get("Authorization"))
	}
}

func TestIssuer_Failures(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)

	tests := []struct {
		name    string
		respond func(w http.ResponseWriter, audience string)
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			respond: func(w http.ResponseWriter, _ string) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var serr *fetch.StatusError
				if !errors.As(err, &serr) || serr.StatusCode != http.StatusInternalServerError {
					t.Errorf("err = %v, want StatusError 500", err)
				}
			},
		},
		{
			name: "malformed body",
			respond: func(w http.ResponseWriter, _ string) {
				_, _ = io.WriteString(w, "<html>")
			},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected decode error")
				}
			},
		},
		{
			name: "empty token",
			respond: func(w http.ResponseWriter, _ string) {
				_, _ = io.WriteString(w, `{"token":""}`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, auth.ErrEmptyToken) {
					t.Errorf("err = %v, want ErrEmptyToken", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			url, _ := issuerServer(t, pki, tt.respond)
			iss, err := auth.NewIssuer(auth.IssuerConfig{URL: url, Client: mtlsClient(t, pki)})
			if err != nil {
				t.Fatalf("NewIssuer: %v", err)
			}
			h, err := iss.Headers(context.Background())
			if h != nil {
				t.Errorf("headers = %v, want nil on failure", h)
			}
			tt.check(t, err)
		})
	}
}

func TestIssuer_RejectsClientWithoutCertificate(t *testing.T) {
	t.Parallel()

	pki := certtest.New(t)
	url, calls := issuerServer(t, pki, func(w http.ResponseWriter, _ string) {
		_, _ = io.WriteString(w, `{"token":"abc"}`)
	})

	hc, err := cert.HTTPClient(cert.TLSConfig{CAFile: pki.CAFile}, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTPClient: %v", err)
	}
	iss, err := auth.NewIssuer(auth.IssuerConfig{URL: url, Client: fetch.New(fetch.Config{HTTPClient: hc})})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := iss.Headers(context.Background()); err == nil {
		t.Error("expected failure without client certificate")
	}
	if calls.Load() != 0 {
		t.Errorf("handler reached %d times, want 0", calls.Load())
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := auth.NewIssuer(auth.IssuerConfig{Client: fetch.New(fetch.Config{})}); err == nil {
		t.Error("expected error without URL")
	}
	if _, err := auth.NewIssuer(auth.IssuerConfig{URL: "https://x/token"}); err == nil {
		t.Error("expected error without client")
	}
}
