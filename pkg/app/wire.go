package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/flemzord/ghbkp/internal/auth"
	"github.com/flemzord/ghbkp/internal/cert"
	"github.com/flemzord/ghbkp/internal/config"
	"github.com/flemzord/ghbkp/internal/crashloop"
	"github.com/flemzord/ghbkp/internal/cron"
	"github.com/flemzord/ghbkp/internal/fetch"
	"github.com/flemzord/ghbkp/internal/gateway"
	"github.com/flemzord/ghbkp/internal/security"
	"github.com/flemzord/ghbkp/internal/telemetry"
	"github.com/flemzord/ghbkp/modules/github"
	"github.com/flemzord/ghbkp/modules/notifier"
)

// Job priorities: on a shared due instant the archive runs first.
const (
	githubPriority   = 1
	notifierPriority = 2
)

// Immediately is the delay before the first cycle of each job.
const Immediately = time.Second

// gaugedBreaker publishes every counter change to the crash gauge.
type gaugedBreaker struct {
	*crashloop.Breaker
	metrics *telemetry.Metrics
}

func (b gaugedBreaker) Reset() error {
	err := b.Breaker.Reset()
	b.metrics.SetCrashCount(b.Count())
	return err
}

func (b gaugedBreaker) RecordFailure() error {
	err := b.Breaker.RecordFailure()
	b.metrics.SetCrashCount(b.Count())
	return err
}

// observers fans a job cycle out to several observers.
func observers(obs ...cron.Observer) cron.Observer {
	return cron.ObserverFunc(func(job string, ran bool, err error, d time.Duration) {
		for _, o := range obs {
			o.ObserveJob(job, ran, err, d)
		}
	})
}

// services are the long-lived components built from a validated config.
type services struct {
	github    *github.Client
	notifier  *notifier.Client
	scheduler *cron.Scheduler
	gateway   *gateway.Gateway
}

type wireParams struct {
	cfg       *config.Config
	creds     *security.CredentialStore
	breaker   gaugedBreaker
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	version   string
	schedOpts []cron.Option
}

func wire(p wireParams) (*services, error) {
	cfg := p.cfg

	gh := github.New(github.Config{
		APIURL: cfg.GitHubAPIURL,
		Auth:   auth.NewBearer(cfg.GitHubToken),
		Fetch: fetch.New(fetch.Config{
			HTTPClient: fetch.StreamingClient(cfg.HTTPTimeout),
			Retries:    cfg.HTTPRetries,
			Logger:     p.logger,
			Metrics:    p.metrics,
		}),
		Excluded: cfg.IsExcluded,
		Logger:   p.logger.With("module", github.JobName),
		Metrics:  p.metrics,
	})

	nc, err := newNotifier(p)
	if err != nil {
		return nil, err
	}

	tracker := gateway.NewTracker()
	var gw *gateway.Gateway
	if cfg.StatusAddr != "" {
		gw = gateway.New(gateway.Config{
			Bind: cfg.StatusAddr,
			Auth: gateway.AuthConfig{BearerToken: cfg.StatusToken},
		}, gateway.Options{
			Tracker: tracker,
			Crash:   p.breaker,
			Metrics: p.metrics,
			Version: p.version,
			Logger:  p.logger,
		})
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("app: loading time zone: %w", err)
	}
	ghGate, err := cron.NewDailyGate(cfg.RunAtHour, cron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	nGate, err := cron.NewDailyGate(cfg.RunAtHour, cron.WithLocation(loc))
	if err != nil {
		return nil, err
	}

	sched := cron.NewScheduler(p.logger, p.schedOpts...)
	observer := observers(p.metrics, tracker)

	archiveJob := &cron.BackupJob{
		Name:      github.JobName,
		Priority:  githubPriority,
		Interval:  cfg.CheckInterval,
		Gate:      ghGate,
		Scheduler: sched,
		Logger:    p.logger,
		Observer:  observer,
		Transfer: func(ctx context.Context) error {
			return gh.Backup(ctx, cfg.OutPath)
		},
	}
	notifierJob := &cron.BackupJob{
		Name:      notifier.JobName,
		Priority:  notifierPriority,
		Interval:  cfg.CheckInterval,
		Gate:      nGate,
		Scheduler: sched,
		Logger:    p.logger,
		Observer:  observer,
		Breaker:   p.breaker,
		Transfer: func(ctx context.Context) error {
			return nc.Backup(ctx, filepath.Join(cfg.OutPath, notifier.BackupFileName))
		},
	}
	archiveJob.Schedule(Immediately)
	notifierJob.Schedule(Immediately)

	return &services{
		github:    gh,
		notifier:  nc,
		scheduler: sched,
		gateway:   gw,
	}, nil
}

// newNotifier builds the notification client over the private CA. With a
// token URL configured, every invocation exchanges the client certificate
// for a fresh token; otherwise the static API key is sent.
func newNotifier(p wireParams) (*notifier.Client, error) {
	cfg := p.cfg
	hc, err := cert.HTTPClient(cert.TLSConfig{
		CAFile:   cfg.Notifier.CABundle,
		CertFile: cfg.Notifier.ClientCert,
		KeyFile:  cfg.Notifier.ClientKey,
	}, cfg.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	client := fetch.New(fetch.Config{
		HTTPClient: hc,
		Retries:    cfg.HTTPRetries,
		Logger:     p.logger,
		Metrics:    p.metrics,
	})

	var authn auth.Authenticator = auth.NewHeaderToken(cfg.Notifier.TokenHeader, cfg.APIKey)
	if cfg.Notifier.IssuedTokens() {
		authn, err = auth.NewIssuer(auth.IssuerConfig{
			URL:         cfg.Notifier.TokenURL,
			Audience:    cfg.Notifier.TokenAudience,
			Header:      cfg.Notifier.TokenHeader,
			Client:      client,
			Credentials: p.creds,
			Logger:      p.logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return notifier.New(notifier.Config{
		HostName:  cfg.Notifier.HostName,
		APIPrefix: cfg.Notifier.APIPrefix,
		Recipient: cfg.Notifier.Recipient,
		Auth:      authn,
		Fetch:     client,
		Logger:    p.logger.With("module", notifier.JobName),
		Metrics:   p.metrics,
	})
}
