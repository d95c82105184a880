package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/ghbkp/internal/fetch"
	"github.com/flemzord/ghbkp/internal/security"
)

// ErrEmptyToken is returned when the issuance endpoint answers 2xx without a
// token.
var ErrEmptyToken = errors.New("auth: issuer returned an empty token")

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	// URL is the issuance endpoint.
	URL string

	// Audience is sent in the request body.
	Audience string

	// Header receives the issued token. Defaults to DefaultTokenHeader.
	Header string

	// Client must be configured for mutual TLS against the private CA.
	Client *fetch.Client

	// Credentials, when set, receives every issued token so log redaction
	// covers it.
	Credentials *security.CredentialStore

	Logger *slog.Logger
}

type issueRequest struct {
	Audience string `json:"audience"`
}

type issueResponse struct {
	Token string `json:"token"`
}

// Issuer obtains a short-lived token from an issuance endpoint. Tokens are
// never cached: each Headers call performs one issuance.
type Issuer struct {
	url      string
	audience string
	header   string
	client   *fetch.Client
	creds    *security.CredentialStore
	logger   *slog.Logger
}

// NewIssuer creates an Issuer from cfg.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.URL == "" {
		return nil, errors.New("auth: issuer URL is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("auth: issuer client is required")
	}
	header := cfg.Header
	if header == "" {
		header = DefaultTokenHeader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		url:      cfg.URL,
		audience: cfg.Audience,
		header:   header,
		client:   cfg.Client,
		creds:    cfg.Credentials,
		logger:   logger,
	}, nil
}

// Headers issues a fresh token and returns it under the configured header.
func (i *Issuer) Headers(ctx context.Context) (http.Header, error) {
	var resp issueResponse
	if err := i.client.PostJSON(ctx, i.url, nil, issueRequest{Audience: i.audience}, &resp); err != nil {
		return nil, fmt.Errorf("auth: issuing token: %w", err)
	}
	if resp.Token == "" {
		return nil, ErrEmptyToken
	}
	if i.creds != nil {
		i.creds.Set("issued_token", resp.Token)
	}
	i.logger.Debug("auth: token issued", "audience", i.audience)

	h := make(http.Header, 1)
	h.Set(i.header, resp.Token)
	return h, nil
}
