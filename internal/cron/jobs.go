package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/ghbkp/internal/telemetry"
)

// Transfer performs one job's domain work.
type Transfer func(ctx context.Context) error

// Resetter clears the crash-loop counter after a fully successful cycle.
type Resetter interface {
	Reset() error
}

// Observer is told about every cycle. ran is false when the gate skipped
// the transfer.
type Observer interface {
	ObserveJob(job string, ran bool, err error, d time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(job string, ran bool, err error, d time.Duration)

// ObserveJob implements Observer.
func (f ObserverFunc) ObserveJob(job string, ran bool, err error, d time.Duration) {
	f(job, ran, err, d)
}

// Gater is satisfied by *Gate.
type Gater interface {
	Check() bool
}

// BackupJob is one recurring backup task. Each Run checks the gate,
// transfers if due, and re-enters itself into the scheduler whatever the
// outcome.
type BackupJob struct {
	Name      string
	Priority  int
	Interval  time.Duration
	Gate      Gater
	Transfer  Transfer
	Scheduler *Scheduler
	Logger    *slog.Logger

	// Breaker is reset after a successful transfer. Only the job that
	// finishes last in a cycle sets it.
	Breaker Resetter

	Observer Observer
}

// Schedule queues the job's first cycle after delay.
func (j *BackupJob) Schedule(delay time.Duration) {
	j.Scheduler.Enter(delay, j.Priority, j.Name, j.Run)
}

// Run executes one cycle. Errors from the transfer or the breaker reset are
// returned after the job has re-entered itself.
func (j *BackupJob) Run(ctx context.Context) (err error) {
	defer j.Schedule(j.Interval)

	runID := uuid.NewString()
	logger := j.Logger.With("job", j.Name, "run_id", runID)

	ctx, span := telemetry.Tracer("github.com/flemzord/ghbkp/internal/cron").Start(ctx, "backup "+j.Name)
	span.SetAttributes(attribute.String("ghbkp.job", j.Name), attribute.String("ghbkp.run_id", runID))
	defer span.End()

	start := time.Now()
	ran := false
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if j.Observer != nil {
			j.Observer.ObserveJob(j.Name, ran, err, time.Since(start))
		}
	}()

	logger.Info("cron: job started")
	if !j.Gate.Check() {
		logger.Info("cron: not due, skipping")
		return nil
	}
	ran = true

	if err := j.Transfer(ctx); err != nil {
		logger.Error("cron: job failed", "error", err)
		return err
	}

	if j.Breaker != nil {
		if err := j.Breaker.Reset(); err != nil {
			logger.Error("cron: resetting crash counter failed", "error", err)
			return fmt.Errorf("cron: resetting crash counter: %w", err)
		}
	}

	logger.Info("cron: job finished", "duration", time.Since(start))
	return nil
}
