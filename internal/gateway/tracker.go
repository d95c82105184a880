package gateway

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// JobStatus is a serializable view of one job's recent history.
type JobStatus struct {
	Name      string    `json:"name"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Skipped   int64     `json:"skipped"`
}

// Tracker remembers the outcome of every job cycle. It implements
// cron.Observer.
type Tracker struct {
	now func() time.Time

	mu   sync.Mutex
	jobs map[string]*JobStatus
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, jobs: make(map[string]*JobStatus)}
}

// ObserveJob records one cycle. A successful run clears the last error.
func (t *Tracker) ObserveJob(job string, ran bool, err error, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.jobs[job]
	if !ok {
		s = &JobStatus{Name: job}
		t.jobs[job] = s
	}
	now := t.now()
	s.LastCheck = now
	if !ran {
		s.Skipped++
		return
	}
	s.Runs++
	s.LastRun = now
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
}

// Snapshot returns the job statuses sorted by name.
func (t *Tracker) Snapshot() []JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobStatus, 0, len(t.jobs))
	for _, s := range t.jobs {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b JobStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
