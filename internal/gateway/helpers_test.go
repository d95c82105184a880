package gateway

import (
	"net/http"
	"time"
)

// fakeCrash is a fixed CrashCounter.
type fakeCrash struct {
	count     int
	threshold int
}

func (f fakeCrash) Count() int     { return f.count }
func (f fakeCrash) Threshold() int { return f.threshold }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// fixedTracker returns a Tracker whose clock always reads at.
func fixedTracker(at time.Time) *Tracker {
	t := NewTracker()
	t.now = func() time.Time { return at }
	return t
}
