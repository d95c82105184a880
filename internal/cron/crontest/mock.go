// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually advanced clock. Its Sleep method advances the
// clock instead of blocking, so a scheduler using both runs instantly.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeClock returns a clock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now implements cron.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep records d and advances the clock. It matches cron.SleepFunc.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps returns every duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// StaticGate answers Check with a fixed value and counts calls.
type StaticGate struct {
	mu    sync.Mutex
	Open  bool
	calls int
}

// Check implements cron.Gater.
func (g *StaticGate) Check() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.Open
}

// Calls returns the number of Check calls.
func (g *StaticGate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// MockResetter counts Reset calls and returns Err.
type MockResetter struct {
	mu     sync.Mutex
	Err    error
	resets int
}

// Reset implements cron.Resetter.
func (m *MockResetter) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return m.Err
}

// Resets returns the number of Reset calls.
func (m *MockResetter) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Observation is one recorded cycle.
type Observation struct {
	Job string
	Ran bool
	Err error
}

// RecordingObserver collects every observed cycle.
type RecordingObserver struct {
	mu  sync.Mutex
	obs []Observation
}

// ObserveJob implements cron.Observer.
func (r *RecordingObserver) ObserveJob(job string, ran bool, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, Observation{Job: job, Ran: ran, Err: err})
}

// Observations returns a copy of the recorded cycles.
func (r *RecordingObserver) Observations() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observation(nil), r.obs...)
}
