// Package gateway serves the daemon's read-only status surface: liveness,
// Prometheus metrics, and an authenticated per-job status report.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/ghbkp/internal/telemetry"
)

// CrashCounter is the view of the crash-loop breaker the gateway reports.
type CrashCounter interface {
	Count() int
	Threshold() int
}

// Gateway is the HTTP status server.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	tracker   *Tracker
	crash     CrashCounter
	metrics   *telemetry.Metrics
	version   string
	startedAt time.Time
}

// Options carries the collaborators a Gateway reports on. All are optional.
type Options struct {
	Tracker *Tracker
	Crash   CrashCounter
	Metrics *telemetry.Metrics
	Version string
	Logger  *slog.Logger
}

// New creates a Gateway. Zero config values fall back to defaults.
func New(cfg Config, opts Options) *Gateway {
	cfg.defaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Gateway{
		config:    cfg,
		logger:    logger,
		tracker:   tracker,
		crash:     opts.Crash,
		metrics:   opts.Metrics,
		version:   opts.Version,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding or tests.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Serve listens on the configured address and serves until ctx ends, then
// shuts down gracefully within the shutdown timeout.
func (g *Gateway) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	case <-ctx.Done():
	}

	// The parent context is already done; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}
