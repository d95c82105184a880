// Package cron drives the recurring backup work: a cooperative,
// single-threaded scheduler, a once-per-day window gate, and the backup job
// that ties them to a transfer.
package cron

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Action is the body of a scheduled task. A returned error ends Run.
type Action func(ctx context.Context) error

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SleepFunc blocks for d or until ctx ends, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type entry struct {
	fireAt   time.Time
	priority int
	seq      uint64
	name     string
	action   Action
}

// entryHeap orders entries by fire time, then priority, then insertion.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.fireAt.Equal(b.fireAt) {
		return a.fireAt.Before(b.fireAt)
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSleeper replaces the idle wait between deadlines.
func WithSleeper(fn SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// Scheduler is a time-ordered task queue drained by a single goroutine.
// Exactly one action runs at a time; actions keep themselves alive by
// calling Enter again before they return.
type Scheduler struct {
	mu     sync.Mutex
	queue  entryHeap
	seq    uint64
	clock  Clock
	sleep  SleepFunc
	logger *slog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		clock:  realClock{},
		sleep:  sleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enter queues action to fire delay from now. Among entries due at the same
// instant, lower priority values fire first, then earlier insertions.
// It is safe to call from inside a running action.
func (s *Scheduler) Enter(delay time.Duration, priority int, name string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	heap.Push(&s.queue, &entry{
		fireAt:   s.clock.Now().Add(delay),
		priority: priority,
		seq:      s.seq,
		name:     name,
		action:   action,
	})
}

// Len returns the number of queued entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Run drains the queue, sleeping until each entry is due and invoking its
// action synchronously. It returns nil once the queue is empty, ctx.Err()
// when ctx ends, and the first action error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return nil
		}
		wait := s.queue[0].fireAt.Sub(s.clock.Now())
		s.mu.Unlock()

		if wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
			// An earlier entry may have been added while sleeping.
			continue
		}

		s.mu.Lock()
		e := heap.Pop(&s.queue).(*entry)
		s.mu.Unlock()

		s.logger.Debug("cron: firing task", "task", e.name, "priority", e.priority)
		if err := e.action(ctx); err != nil {
			return fmt.Errorf("cron: task %s: %w", e.name, err)
		}
	}
}
