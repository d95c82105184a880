// Package github backs up every repository owned by the authenticated user
// as a zipball archive.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/flemzord/ghbkp/internal/atomicfile"
	"github.com/flemzord/ghbkp/internal/auth"
	"github.com/flemzord/ghbkp/internal/fetch"
	"github.com/flemzord/ghbkp/internal/telemetry"
)

// JobName identifies the archive job in logs and metrics.
const JobName = "github"

const (
	pageSize   = 30
	apiVersion = "2022-11-28"
)

// Repo is the subset of the repository resource needed for a backup.
type Repo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Config configures a Client.
type Config struct {
	// APIURL is the REST root, without trailing slash.
	APIURL string

	// Auth supplies the Authorization header.
	Auth auth.Authenticator

	// Fetch issues the requests.
	Fetch *fetch.Client

	// Excluded reports repository names to skip.
	Excluded func(name string) bool

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Client lists and archives repositories.
type Client struct {
	apiURL   string
	auth     auth.Authenticator
	fetch    *fetch.Client
	excluded func(string) bool
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// New creates a Client.
func New(cfg Config) *Client {
	excluded := cfg.Excluded
	if excluded == nil {
		excluded = func(string) bool { return false }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		auth:     cfg.Auth,
		fetch:    cfg.Fetch,
		excluded: excluded,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Headers returns the credential, media type and API version headers.
func (c *Client) Headers(ctx context.Context) (http.Header, error) {
	h, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("github: building headers: %w", err)
	}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", apiVersion)
	return h, nil
}

// Repos lists every repository owned by the caller, following pagination.
func (c *Client) Repos(ctx context.Context) ([]Repo, error) {
	h, err := c.Headers(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/user/repos?per_page=%d&type=owner", c.apiURL, pageSize)
	repos, err := fetch.All[Repo](ctx, c.fetch, url, h)
	if err != nil {
		return nil, fmt.Errorf("github: listing repositories: %w", err)
	}
	return repos, nil
}

// Backup writes <outDir>/<name>.zip for every repository not excluded.
// The first failure aborts the run; archives already written are kept.
func (c *Client) Backup(ctx context.Context, outDir string) error {
	c.logger.Info("github: listing repositories")
	repos, err := c.Repos(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("github: repositories found", "count", len(repos))

	h, err := c.Headers(ctx)
	if err != nil {
		return err
	}

	for _, repo := range repos {
		if c.excluded(repo.Name) {
			c.logger.Info("github: repo excluded", "repo", repo.Name)
			continue
		}
		if err := c.archive(ctx, repo, h, outDir); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) archive(ctx context.Context, repo Repo, h http.Header, outDir string) error {
	if repo.Name == "" || strings.ContainsAny(repo.Name, `/\`) || repo.Name == "." || repo.Name == ".." {
		return fmt.Errorf("github: refusing unsafe repository name %q", repo.Name)
	}

	c.logger.Info("github: backing up", "repo", repo.Name)
	resp, err := c.fetch.Get(ctx, repo.URL+"/zipball", h)
	if err != nil {
		return fmt.Errorf("github: downloading %s: %w", repo.Name, err)
	}
	defer resp.Body.Close()

	dest := filepath.Join(outDir, repo.Name+".zip")
	n, err := atomicfile.WriteReader(dest, resp.Body)
	if err != nil {
		return fmt.Errorf("github: writing %s: %w", repo.Name, err)
	}
	c.metrics.AddArchiveBytes(JobName, n)
	c.logger.Debug("github: archive written", "repo", repo.Name, "path", dest, "bytes", n)
	return nil
}
