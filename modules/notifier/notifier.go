// Package notifier talks to the private notification/reminder service: it
// backs up the address book and reminders, and sends operator alerts.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/flemzord/ghbkp/internal/atomicfile"
	"github.com/flemzord/ghbkp/internal/auth"
	"github.com/flemzord/ghbkp/internal/fetch"
	"github.com/flemzord/ghbkp/internal/telemetry"
)

// JobName identifies the notifier backup job in logs and metrics.
const JobName = "notifier"

// BackupFileName is the archive written under the output directory.
const BackupFileName = "notifier.bkp"

// ErrRecipientUnresolved is returned by Notify when the configured recipient
// matches zero or several address book entries. No message is sent.
var ErrRecipientUnresolved = errors.New("notifier: recipient not resolved")

// Contact is one address book entry. Only the fields used to address a
// message are decoded; backups keep the raw entry.
type Contact struct {
	ID          json.RawMessage `json:"id"`
	DisplayName string          `json:"display_name"`
}

// Snapshot is the document written by Backup.
type Snapshot struct {
	AddressBook []json.RawMessage `json:"address_book"`
	Reminders   []json.RawMessage `json:"reminders"`
}

type remindersResponse struct {
	Reminders []struct {
		Reminder json.RawMessage `json:"reminder"`
	} `json:"reminders"`
}

// Config configures a Client.
type Config struct {
	// HostName is the service root, e.g. "https://notifier.internal/".
	HostName string

	// APIPrefix is inserted before "/api", e.g. "/notifier".
	APIPrefix string

	// Recipient is the display name alerts are sent to.
	Recipient string

	Auth    auth.Authenticator
	Fetch   *fetch.Client
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Client is a notification service client.
type Client struct {
	base      string
	recipient string
	auth      auth.Authenticator
	fetch     *fetch.Client
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.JoinPath(cfg.HostName, cfg.APIPrefix, "api")
	if err != nil {
		return nil, fmt.Errorf("notifier: building base URL: %w", err)
	}
	if cfg.Auth == nil || cfg.Fetch == nil {
		return nil, errors.New("notifier: auth and fetch client are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:      base,
		recipient: cfg.Recipient,
		auth:      cfg.Auth,
		fetch:     cfg.Fetch,
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

func (c *Client) endpoint(elem ...string) string {
	u, _ := url.JoinPath(c.base, elem...)
	return u
}

// Headers returns the credential headers for one invocation. With an issuer
// this performs a token exchange.
func (c *Client) Headers(ctx context.Context) (http.Header, error) {
	h, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("notifier: obtaining credentials: %w", err)
	}
	h.Set("Accept", "application/json")
	return h, nil
}

// AddressBook returns the raw address book entries.
func (c *Client) AddressBook(ctx context.Context, h http.Header) ([]json.RawMessage, error) {
	book := []json.RawMessage{}
	if _, err := c.fetch.GetJSON(ctx, c.endpoint("addressbook"), h, &book); err != nil {
		return nil, fmt.Errorf("notifier: fetching address book: %w", err)
	}
	return book, nil
}

// Reminders returns the reminder payloads, unwrapped from their envelope.
func (c *Client) Reminders(ctx context.Context, h http.Header) ([]json.RawMessage, error) {
	var resp remindersResponse
	if _, err := c.fetch.GetJSON(ctx, c.endpoint("reminder"), h, &resp); err != nil {
		return nil, fmt.Errorf("notifier: fetching reminders: %w", err)
	}
	out := make([]json.RawMessage, 0, len(resp.Reminders))
	for _, r := range resp.Reminders {
		out = append(out, r.Reminder)
	}
	return out, nil
}

// Backup writes the address book and reminders to dest as one JSON
// document.
func (c *Client) Backup(ctx context.Context, dest string) error {
	h, err := c.Headers(ctx)
	if err != nil {
		return err
	}

	book, err := c.AddressBook(ctx, h)
	if err != nil {
		return err
	}
	reminders, err := c.Reminders(ctx, h)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Snapshot{AddressBook: book, Reminders: reminders})
	if err != nil {
		return fmt.Errorf("notifier: encoding snapshot: %w", err)
	}
	if err := atomicfile.Write(dest, data); err != nil {
		return fmt.Errorf("notifier: writing snapshot: %w", err)
	}
	c.metrics.AddArchiveBytes(JobName, int64(len(data)))
	c.logger.Info("notifier: snapshot written",
		"path", dest,
		"contacts", len(book),
		"reminders", len(reminders),
	)
	return nil
}

// Resolve returns the id of the single address book entry whose display
// name equals the configured recipient.
func (c *Client) Resolve(ctx context.Context, h http.Header) (string, error) {
	book := []Contact{}
	if _, err := c.fetch.GetJSON(ctx, c.endpoint("addressbook"), h, &book); err != nil {
		return "", fmt.Errorf("notifier: fetching address book: %w", err)
	}

	var matches []Contact
	for _, e := range book {
		if e.DisplayName == c.recipient {
			matches = append(matches, e)
		}
	}
	if len(matches) != 1 {
		c.logger.Warn("notifier: unable to resolve recipient",
			"recipient", c.recipient,
			"matches", len(matches),
		)
		return "", fmt.Errorf("%w: %d entries named %q", ErrRecipientUnresolved, len(matches), c.recipient)
	}
	return contactID(matches[0].ID)
}

// Notify sends text to the configured recipient.
func (c *Client) Notify(ctx context.Context, text string) error {
	h, err := c.Headers(ctx)
	if err != nil {
		return err
	}
	id, err := c.Resolve(ctx, h)
	if err != nil {
		return err
	}

	body := struct {
		Message string `json:"message"`
	}{Message: text}
	if err := c.fetch.PostJSON(ctx, c.endpoint("send", pathSegment(id)), h, body, nil); err != nil {
		return fmt.Errorf("notifier: sending message: %w", err)
	}
	c.logger.Info("notifier: message sent", "recipient", c.recipient)
	return nil
}

// contactID renders a JSON string or number id as a path segment.
// pathSegment escapes id so that it stays a single segment of the send
// path. Dots are escaped as well, otherwise ".." would be cleaned away.
func pathSegment(id string) string {
	return strings.ReplaceAll(url.PathEscape(id), ".", "%2E")
}

func contactID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("notifier: unusable contact id %s", raw)
}
