// Package config loads the daemon configuration from environment variables,
// normalizes it, and validates it once at startup. The resulting Config is
// treated as immutable.
package config

import "time"

// Defaults applied when the corresponding variable is unset.
const (
	DefaultCABundle      = "./private-tls-ca.pem"
	DefaultGitHubAPIURL  = "https://api.github.com"
	DefaultCheckInterval = 10 * time.Minute
	DefaultCrashRetries  = 1
	DefaultHTTPTimeout   = 5 * time.Minute
	DefaultTokenHeader   = "X-Token"
)

// Config is the top-level configuration structure.
type Config struct {
	// GitHubToken authenticates archive downloads.
	GitHubToken string `env:"GHBKP_TOKEN" yaml:"github_token"`

	// OutPath is the backup directory. Always ends with a slash after
	// Normalize.
	OutPath string `env:"OUT_PATH" yaml:"out_path"`

	// APIKey is the static notification service token, sent in the token
	// header when no issuer is configured.
	APIKey string `env:"API_KEY" yaml:"api_key"`

	// RunAtHourRaw is parsed leniently into RunAtHour: anything outside
	// 0-23 falls back to 0.
	RunAtHourRaw string `env:"RUN_AT_HOUR" yaml:"-"`
	RunAtHour    int    `yaml:"run_at_hour"`

	// ExclusionsRaw is a whitespace separated list of repository names.
	ExclusionsRaw string   `env:"EXCLUSIONS" yaml:"-"`
	Exclusions    []string `yaml:"exclusions"`

	Notifier NotifierConfig `yaml:"notifier"`

	GitHubAPIURL    string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com" yaml:"github_api_url"`
	CheckInterval   time.Duration `env:"CHECK_INTERVAL" envDefault:"10m" yaml:"check_interval"`
	CrashMaxRetries int           `env:"CRASH_MAX_RETRIES" envDefault:"1" yaml:"crash_max_retries"`
	HTTPRetries     uint64        `env:"HTTP_RETRIES" envDefault:"0" yaml:"http_retries"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"5m" yaml:"http_timeout"`

	// StatusAddr enables the status server when set (e.g. "127.0.0.1:9090").
	StatusAddr  string `env:"STATUS_ADDR" yaml:"status_addr,omitempty"`
	StatusToken string `env:"STATUS_TOKEN" yaml:"status_token,omitempty"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`

	// TZName selects the zone the run hour is evaluated in. Empty means the
	// process local zone.
	TZName string `env:"TZ_NAME" yaml:"tz_name,omitempty"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint,omitempty"`
}

// NotifierConfig describes the notification/reminder service.
type NotifierConfig struct {
	HostName  string `env:"CONF_HOST_NAME" yaml:"host_name"`
	APIPrefix string `env:"CONF_API_PREFIX" yaml:"api_prefix"`
	Recipient string `env:"CONF_RECIPIENT" yaml:"recipient"`

	CABundle   string `env:"CONF_CA_BUNDLE" envDefault:"./private-tls-ca.pem" yaml:"ca_bundle"`
	ClientCert string `env:"CONF_CLIENT_CERT" yaml:"client_cert,omitempty"`
	ClientKey  string `env:"CONF_CLIENT_KEY" yaml:"client_key,omitempty"`

	// TokenURL switches authentication to issued tokens obtained over
	// mutual TLS.
	TokenURL      string `env:"CONF_TOKEN_URL" yaml:"token_url,omitempty"`
	TokenAudience string `env:"CONF_TOKEN_AUDIENCE" yaml:"token_audience,omitempty"`
	TokenHeader   string `env:"CONF_TOKEN_HEADER" envDefault:"X-Token" yaml:"token_header"`
}

// IssuedTokens reports whether the notifier authenticates with issued
// tokens rather than the static API key.
func (n NotifierConfig) IssuedTokens() bool {
	return n.TokenURL != ""
}

// Location returns the zone named by TZName, or time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.TZName == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TZName)
}

// IsExcluded reports whether the repository name is in the exclusion list.
func (c *Config) IsExcluded(name string) bool {
	for _, e := range c.Exclusions {
		if e == name {
			return true
		}
	}
	return false
}
