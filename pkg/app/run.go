// Package app provides the entry point shared by the ghbkp commands: it
// turns the environment into a running backup daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/ghbkp/internal/config"
	"github.com/flemzord/ghbkp/internal/crashloop"
	"github.com/flemzord/ghbkp/internal/cron"
	"github.com/flemzord/ghbkp/internal/security"
	"github.com/flemzord/ghbkp/internal/telemetry"
)

// AlertTimeout bounds the best-effort failure notification.
const AlertTimeout = 30 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// Env replaces the process environment when non-nil.
	Env map[string]string

	// Stderr receives the log output. Defaults to os.Stderr.
	Stderr io.Writer

	// SchedulerOptions are passed to the job scheduler.
	SchedulerOptions []cron.Option
}

// LoadConfig parses and normalizes the configuration from env, or from the
// process environment when env is nil. It does not validate.
func LoadConfig(env map[string]string) (*config.Config, error) {
	if env == nil {
		return config.Load()
	}
	return config.LoadFrom(env)
}

// Run loads configuration, schedules both backup jobs, and blocks until ctx
// ends, a signal arrives, or a job fails.
//
// A clean shutdown returns nil. A job failure is recorded with the
// crash-loop breaker, reported to the configured recipient on a best-effort
// basis, and returned. When the breaker has tripped, Run logs and returns
// nil without doing any work.
func Run(ctx context.Context, params RunParams) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	creds := security.NewCredentialStore()
	redactor := security.NewRedactor()
	redactor.Watch(creds)

	// A parse failure still yields every variable that did parse, so the
	// failure can be logged and counted like any other bad configuration.
	cfg, cfgErr := LoadConfig(params.Env)
	if cfgErr == nil {
		cfgErr = config.Validate(cfg)
	}
	cfg.Credentials(creds)

	level, levelErr := security.ParseLevel(cfg.LogLevel)
	if levelErr != nil {
		level = slog.LevelInfo
	}
	logger := security.NewLogger(stderr, level, redactor)

	// Without an output directory there is nowhere to keep the counter.
	if cfg.OutPath == "" {
		logger.Error("app: invalid configuration", "error", cfgErr)
		return cfgErr
	}

	metrics := telemetry.NewMetrics()
	b, err := crashloop.Open(crashloop.PathIn(cfg.OutPath), cfg.CrashMaxRetries, logger)
	if err != nil {
		return err
	}
	breaker := gaugedBreaker{Breaker: b, metrics: metrics}
	metrics.SetCrashCount(breaker.Count())

	if cfgErr != nil {
		logger.Error("app: invalid configuration", "error", cfgErr)
		return recordFailure(logger, breaker, cfgErr)
	}

	if breaker.Detected() {
		logger.Warn("app: crash loop detected, backing off",
			"count", breaker.Count(),
			"threshold", breaker.Threshold(),
		)
		return nil
	}

	logger.Info("app: starting",
		"version", params.Version,
		"commit", params.Commit,
		"interval_seconds", int(cfg.CheckInterval.Seconds()),
		"now", time.Now().Format(time.RFC3339),
		"excluded", cfg.Exclusions,
		"run_at_hour", cfg.RunAtHour,
	)

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, params.Version)
	if err != nil {
		return recordFailure(logger, breaker, err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("app: flushing traces failed", "error", err)
		}
	}()

	svc, err := wire(wireParams{
		cfg:       cfg,
		creds:     creds,
		breaker:   breaker,
		metrics:   metrics,
		logger:    logger,
		version:   params.Version,
		schedOpts: params.SchedulerOptions,
	})
	if err != nil {
		logger.Error("app: setup failed", "error", err)
		return recordFailure(logger, breaker, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// Stop the gateway once the scheduler is done, whatever the cause.
		defer cancel()
		return svc.scheduler.Run(gctx)
	})
	if svc.gateway != nil {
		g.Go(func() error {
			return svc.gateway.Serve(gctx)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("app: shutdown signal received")
		return nil
	}
	if err == nil {
		return nil
	}

	logger.Error("app: backup error", "error", err)
	err = recordFailure(logger, breaker, err)

	alertCtx, alertCancel := context.WithTimeout(context.WithoutCancel(ctx), AlertTimeout)
	defer alertCancel()
	if nerr := svc.notifier.Notify(alertCtx, fmt.Sprintf("backup error: %v", redactor.Redact(err.Error()))); nerr != nil {
		logger.Warn("app: unable to send failure alert", "error", nerr)
	}
	return err
}

// recordFailure bumps the crash counter and returns cause, joined with any
// persistence error.
func recordFailure(logger *slog.Logger, b gaugedBreaker, cause error) error {
	if err := b.RecordFailure(); err != nil {
		logger.Error("app: recording failure", "error", err)
		return errors.Join(cause, err)
	}
	logger.Info("app: failure recorded", "count", b.Count(), "threshold", b.Threshold())
	return cause
}
