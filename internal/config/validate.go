package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/flemzord/ghbkp/internal/security"
)

// Validate checks that every required value is present and consistent.
// All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.GitHubToken == "" {
		errs = append(errs, errors.New("config: GHBKP_TOKEN is required"))
	}
	if cfg.OutPath == "" {
		errs = append(errs, errors.New("config: OUT_PATH is required"))
	}
	if _, err := url.ParseRequestURI(cfg.GitHubAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("config: GITHUB_API_URL: %w", err))
	}
	if cfg.CheckInterval < time.Second {
		errs = append(errs, fmt.Errorf("config: CHECK_INTERVAL must be at least 1s, got %s", cfg.CheckInterval))
	}
	if cfg.CrashMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("config: CRASH_MAX_RETRIES must not be negative, got %d", cfg.CrashMaxRetries))
	}
	if cfg.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout))
	}
	if _, err := security.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config: LOG_LEVEL: %w", err))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, fmt.Errorf("config: TZ_NAME: %w", err))
	}

	errs = append(errs, validateNotifier(cfg)...)

	return errors.Join(errs...)
}

func validateNotifier(cfg *Config) []error {
	var errs []error
	n := cfg.Notifier

	if n.HostName == "" {
		errs = append(errs, errors.New("config: CONF_HOST_NAME is required"))
	} else if _, err := url.ParseRequestURI(n.HostName); err != nil {
		errs = append(errs, fmt.Errorf("config: CONF_HOST_NAME: %w", err))
	}
	if n.APIPrefix == "" {
		errs = append(errs, errors.New("config: CONF_API_PREFIX is required"))
	}
	if n.Recipient == "" {
		errs = append(errs, errors.New("config: CONF_RECIPIENT is required"))
	}
	if n.CABundle == "" {
		errs = append(errs, errors.New("config: CONF_CA_BUNDLE must not be empty"))
	}
	if (n.ClientCert == "") != (n.ClientKey == "") {
		errs = append(errs, errors.New("config: CONF_CLIENT_CERT and CONF_CLIENT_KEY must be set together"))
	}

	if n.IssuedTokens() {
		if _, err := url.ParseRequestURI(n.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("config: CONF_TOKEN_URL: %w", err))
		}
		if n.ClientCert == "" {
			errs = append(errs, errors.New("config: CONF_TOKEN_URL requires CONF_CLIENT_CERT and CONF_CLIENT_KEY"))
		}
	} else if cfg.APIKey == "" {
		errs = append(errs, errors.New("config: API_KEY is required unless CONF_TOKEN_URL is set"))
	}

	return errs
}
