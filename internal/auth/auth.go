// Package auth builds the credential headers attached to outbound requests.
//
// Two variants exist: Static wraps a long-lived token and needs no network
// round-trip; Issuer exchanges a client certificate for a short-lived token
// on every call.
package auth

import (
	"context"
	"net/http"
)

// DefaultTokenHeader carries issued and static service tokens.
const DefaultTokenHeader = "X-Token"

// Authenticator returns the headers to attach to every request of one task
// invocation.
type Authenticator interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Static attaches a fixed header value.
type Static struct {
	name  string
	value string
}

// NewBearer returns an Authenticator setting "Authorization: Bearer <token>".
func NewBearer(token string) *Static {
	return &Static{name: "Authorization", value: "Bearer " + token}
}

// NewHeaderToken returns an Authenticator setting header name to value.
// An empty name falls back to DefaultTokenHeader.
func NewHeaderToken(name, value string) *Static {
	if name == "" {
		name = DefaultTokenHeader
	}
	return &Static{name: name, value: value}
}

// Headers implements Authenticator.
func (s *Static) Headers(context.Context) (http.Header, error) {
	h := make(http.Header, 1)
	h.Set(s.name, s.value)
	return h, nil
}
