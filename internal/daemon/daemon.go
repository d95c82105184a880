// Package daemon runs the backup loop as a system service (systemd, launchd,
// or the Windows service manager) and exposes install/uninstall controls.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kardianos/service"
)

// Name is the service name registered with the host service manager.
const Name = "ghbkp"

// DefaultStopTimeout bounds how long Stop waits for the loop to unwind.
const DefaultStopTimeout = 30 * time.Second

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
var ErrStopTimeout = errors.New("daemon: timed out waiting for the backup loop to stop")

// RunFunc is the blocking main loop. It must return when ctx ends.
type RunFunc func(ctx context.Context) error

// Program adapts a RunFunc to service.Interface.
type Program struct {
	run         RunFunc
	logger      *slog.Logger
	stopTimeout time.Duration

	// OnExit, when set, is called with the loop's result if it returns
	// before Stop was requested.
	OnExit func(error)

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	stopping bool
}

// NewProgram wraps run.
func NewProgram(run RunFunc, logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{run: run, logger: logger, stopTimeout: DefaultStopTimeout}
}

// Start implements service.Interface. It must not block.
func (p *Program) Start(_ service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return errors.New("daemon: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		err := p.run(ctx)

		p.mu.Lock()
		p.err = err
		stopping := p.stopping
		p.mu.Unlock()
		close(p.done)

		if !stopping {
			p.logger.Warn("daemon: backup loop exited", "error", err)
			if p.OnExit != nil {
				p.OnExit(err)
			}
		}
	}()
	p.logger.Info("daemon: started")
	return nil
}

// Stop implements service.Interface. It cancels the loop and waits for it.
func (p *Program) Stop(_ service.Service) error {
	p.mu.Lock()
	if p.done == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.cancel()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(p.stopTimeout):
		return ErrStopTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("daemon: stopped")
	return p.err
}

// Err returns the loop's result once it has exited.
func (p *Program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Config describes the service. The service runs "<executable> run" with the
// given environment, which carries the whole configuration.
func Config(env map[string]string) *service.Config {
	return &service.Config{
		Name:        Name,
		DisplayName: "GitHub backup daemon",
		Description: "Archives GitHub repositories and the notification service data once a day.",
		Arguments:   []string{"run"},
		EnvVars:     env,
	}
}

// New binds p to the host service manager.
func New(p *Program, cfg *service.Config) (service.Service, error) {
	s, err := service.New(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: creating service: %w", err)
	}
	return s, nil
}

// Control performs one of service.ControlAction on s.
func Control(s service.Service, action string) error {
	if !slices.Contains(service.ControlAction[:], action) {
		return fmt.Errorf("daemon: unknown action %q (valid: %v)", action, service.ControlAction)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("daemon: %s: %w", action, err)
	}
	return nil
}
