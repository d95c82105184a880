package cron

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithNow replaces the wall clock used by Check.
func WithNow(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithLocation evaluates the window in loc instead of time.Local.
func WithLocation(loc *time.Location) GateOption {
	return func(g *Gate) { g.loc = loc }
}

// Gate decides whether a daily job is due. The first Check after
// construction always passes. After that, Check passes once per window,
// the hour starting at each activation of the daily schedule.
//
// State is in memory only, so a restart inside the window passes again.
type Gate struct {
	mu       sync.Mutex
	schedule cron.Schedule
	hour     int
	loc      *time.Location
	now      func() time.Time

	firedOnce  bool
	lastResult bool
}

// NewDailyGate returns a Gate whose window is [hour:00, hour+1:00).
func NewDailyGate(hour int, opts ...GateOption) (*Gate, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("cron: run hour %d out of range 0-23", hour)
	}
	schedule, err := cron.ParseStandard(fmt.Sprintf("0 %d * * *", hour))
	if err != nil {
		return nil, fmt.Errorf("cron: building daily schedule: %w", err)
	}

	g := &Gate{
		schedule: schedule,
		hour:     hour,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Hour returns the configured run hour.
func (g *Gate) Hour() int { return g.hour }

// Check reports whether the job should run now.
func (g *Gate) Check() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.firedOnce {
		g.firedOnce = true
		return true
	}

	if !g.inWindow(g.now()) {
		g.lastResult = false
		return false
	}
	if g.lastResult {
		return false
	}
	g.lastResult = true
	return true
}

// inWindow reports whether t falls in the hour that starts at a schedule
// activation.
func (g *Gate) inWindow(t time.Time) bool {
	t = t.In(g.loc)
	hourStart := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, g.loc)
	return g.schedule.Next(hourStart.Add(-time.Second)).Equal(hourStart)
}
