package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/ghbkp/internal/security/securitytest"
)

func TestProgram_StartStop(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	p := NewProgram(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}, nil)
	p.OnExit = func(error) { t.Error("OnExit called on requested stop") }

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if err := p.Start(nil); err == nil {
		t.Error("second Start should fail")
	}
	if err := p.Stop(nil); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestProgram_StopBeforeStart(t *testing.T) {
	t.Parallel()

	p := NewProgram(func(context.Context) error { return nil }, nil)
	if err := p.Stop(nil); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestProgram_LoopExitCallsOnExit(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	logger, logs := securitytest.NewLogger()
	p := NewProgram(func(context.Context) error { return boom }, logger)
	exited := make(chan error, 1)
	p.OnExit = func(err error) { exited <- err }

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case err := <-exited:
		if !errors.Is(err, boom) {
			t.Errorf("OnExit err = %v, want boom", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit not called")
	}
	if !errors.Is(p.Err(), boom) {
		t.Errorf("Err() = %v, want boom", p.Err())
	}
	if !logs.Contains("daemon: backup loop exited", "error=boom") {
		t.Errorf("missing exit log:\n%s", logs.String())
	}
}

func TestProgram_StopTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p := NewProgram(func(context.Context) error {
		<-release
		return nil
	}, nil)
	p.stopTimeout = 10 * time.Millisecond

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(nil); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Stop err = %v, want ErrStopTimeout", err)
	}
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := Config(map[string]string{"OUT_PATH": "/backups/"})
	if cfg.Name != Name {
		t.Errorf("Name = %q, want %q", cfg.Name, Name)
	}
	if len(cfg.Arguments) != 1 || cfg.Arguments[0] != "run" {
		t.Errorf("Arguments = %v, want [run]", cfg.Arguments)
	}
	if cfg.EnvVars["OUT_PATH"] != "/backups/" {
		t.Errorf("EnvVars = %v", cfg.EnvVars)
	}
}

func TestControl_UnknownAction(t *testing.T) {
	t.Parallel()

	if err := Control(nil, "explode"); err == nil {
		t.Error("expected error for unknown action")
	}
}
