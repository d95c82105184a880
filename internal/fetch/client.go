// Package fetch is the outbound HTTP layer: a status-checking client with
// bounded retries and a paginated fetcher that follows Link-header cursors.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/ghbkp/internal/telemetry"
)

const (
	defaultTimeout = 5 * time.Minute

	// maxErrorBody caps how much of a failed response is kept in StatusError.
	maxErrorBody = 4 << 10
)

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("fetch: %s %s: unexpected status %d %s",
		e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether retrying the request might succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client.
type Config struct {
	// HTTPClient is the underlying client. Defaults to a client with a
	// five-minute timeout.
	HTTPClient *http.Client

	// Retries is the number of additional attempts after a transport error,
	// 429 or 5xx. Zero means a single attempt.
	Retries uint64

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// StreamingClient returns an HTTP client for downloads of unbounded size.
// timeout limits dialing, the TLS handshake and the wait for response
// headers; reading the body is bounded only by the request context.
func StreamingClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: tr}
}

// Client issues HTTP requests and fails loudly on non-success statuses.
type Client struct {
	http    *http.Client
	retries uint64
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    hc,
		retries: cfg.Retries,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  telemetry.Tracer("github.com/flemzord/ghbkp/internal/fetch"),
	}
}

// Do sends a request and returns the response of the first successful
// attempt. The caller must close the response body. body may be nil.
func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("server.address", hostOf(rawURL)),
	)

	attempt := func() (*http.Response, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("fetch: building %s request: %w", method, err))
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.metrics.RecordHTTP(method, 0)
			return nil, fmt.Errorf("fetch: %s %s: %w", method, redactURL(rawURL), err)
		}
		c.metrics.RecordHTTP(method, resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := newStatusError(method, rawURL, resp)
			if serr.Temporary() {
				return nil, serr
			}
			return nil, backoff.Permanent(serr)
		}
		return resp, nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("fetch: request failed, retrying", "method", method, "wait", wait, "error", err)
	}

	resp, err := backoff.RetryNotifyWithData(attempt, b, notify)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, header, nil)
}

// GetJSON issues a GET request, decodes the JSON body into v, and returns
// the response headers.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v any) (http.Header, error) {
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, fmt.Errorf("fetch: decoding %s: %w", redactURL(rawURL), err)
	}
	return resp.Header, nil
}

// PostJSON marshals in as the request body and, when out is non-nil,
// decodes the JSON response into it.
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("fetch: encoding request for %s: %w", redactURL(rawURL), err)
	}

	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Type", "application/json")

	resp, err := c.Do(ctx, http.MethodPost, rawURL, h, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fetch: decoding %s: %w", redactURL(rawURL), err)
	}
	return nil
}

func newStatusError(method, rawURL string, resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		URL:        redactURL(rawURL),
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
	}
}

// redactURL drops user info and the query string, which may carry secrets.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
