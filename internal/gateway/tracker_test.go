package gateway

import (
	"errors"
	"testing"
	"time"
)

func TestTracker_ObserveJob(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := fixedTracker(at)

	tr.ObserveJob("notifier", false, nil, 0)
	tr.ObserveJob("github", true, errors.New("boom"), time.Second)
	tr.ObserveJob("notifier", true, nil, time.Second)

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("jobs = %d, want 2", len(snap))
	}
	if snap[0].Name != "github" || snap[1].Name != "notifier" {
		t.Errorf("order = [%s %s], want [github notifier]", snap[0].Name, snap[1].Name)
	}

	gh := snap[0]
	if gh.Runs != 1 || gh.Failures != 1 || gh.LastError != "boom" {
		t.Errorf("github = %+v", gh)
	}
	if !gh.LastRun.Equal(at) {
		t.Errorf("github last run = %v, want %v", gh.LastRun, at)
	}

	n := snap[1]
	if n.Skipped != 1 || n.Runs != 1 || n.Failures != 0 || n.LastError != "" {
		t.Errorf("notifier = %+v", n)
	}
}

func TestTracker_SuccessClearsLastError(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ObserveJob("github", true, errors.New("boom"), 0)
	tr.ObserveJob("github", false, nil, 0)

	if got := tr.Snapshot()[0].LastError; got != "boom" {
		t.Errorf("after skip: last error = %q, want boom", got)
	}

	tr.ObserveJob("github", true, nil, 0)
	s := tr.Snapshot()[0]
	if s.LastError != "" {
		t.Errorf("after success: last error = %q, want empty", s.LastError)
	}
	if s.Failures != 1 || s.Runs != 2 {
		t.Errorf("counters = %+v", s)
	}
}
