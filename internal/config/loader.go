package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/ghbkp/internal/security"
)

// Load parses the process environment, then normalizes the result.
// Validation is left to the caller so that a partially valid config (one
// with OUT_PATH) can still be used to record the failure. On a parse error
// the returned Config holds every variable that did parse.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom is Load over an explicit variable set instead of the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

// Keys returns every environment variable the configuration reads, sorted.
func Keys() ([]string, error) {
	params, err := env.GetFieldParams(&Config{})
	if err != nil {
		return nil, fmt.Errorf("config: listing variables: %w", err)
	}
	keys := make([]string, 0, len(params))
	for _, p := range params {
		keys = append(keys, p.Key)
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// Environ returns the configuration variables currently set in the process
// environment, for handing to a service manager.
func Environ() (map[string]string, error) {
	keys, err := Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, opts)
	cfg.Normalize()
	if err != nil {
		return &cfg, fmt.Errorf("config: parsing environment: %w", err)
	}
	return &cfg, nil
}

// Normalize applies trailing-slash normalization to path-like values,
// splits the exclusion list, and resolves the run hour.
func (c *Config) Normalize() {
	c.OutPath = withTrailingSlash(c.OutPath)
	c.Notifier.HostName = withTrailingSlash(c.Notifier.HostName)
	c.GitHubAPIURL = strings.TrimRight(c.GitHubAPIURL, "/")

	c.Exclusions = strings.Fields(c.ExclusionsRaw)
	c.RunAtHour = parseHour(c.RunAtHourRaw)

	if c.Notifier.TokenHeader == "" {
		c.Notifier.TokenHeader = DefaultTokenHeader
	}
}

func withTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// parseHour accepts 0-23; anything else, including garbage, means 0.
func parseHour(raw string) int {
	h, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || h < 0 || h > 23 {
		return 0
	}
	return h
}

// Credentials registers every secret in the config with store.
func (c *Config) Credentials(store *security.CredentialStore) {
	store.Set("github_token", c.GitHubToken)
	store.Set("api_key", c.APIKey)
	store.Set("status_token", c.StatusToken)
}

// Dump renders the config as YAML with secrets redacted.
func (c *Config) Dump(redactor *security.Redactor) ([]byte, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config: re-decoding: %w", err)
	}
	redactor.RedactMap(m)

	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("config: encoding redacted: %w", err)
	}
	return out, nil
}
