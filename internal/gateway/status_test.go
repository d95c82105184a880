package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatus_RequiresToken(t *testing.T) {
	t.Parallel()

	g := New(Config{Auth: AuthConfig{BearerToken: "status-token"}}, Options{})

	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestStatus_NotMountedWithoutToken(t *testing.T) {
	t.Parallel()

	g := New(Config{}, Options{})

	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStatus_ReportsJobs(t *testing.T) {
	t.Parallel()

	g := New(Config{Auth: AuthConfig{BearerToken: "status-token"}}, Options{
		Crash:   fakeCrash{count: 1, threshold: 3},
		Version: "1.2.3",
	})
	g.startedAt = time.Now().Add(-5 * time.Minute)
	g.tracker.ObserveJob("github", true, nil, time.Second)
	g.tracker.ObserveJob("notifier", true, errors.New("notifier: sending message: 403"), time.Second)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer status-token")
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q", resp.Version)
	}
	if resp.Uptime < 300 {
		t.Errorf("uptime = %d, want >= 300", resp.Uptime)
	}
	if resp.CrashCount != 1 || resp.CrashThreshold != 3 {
		t.Errorf("crash = %d/%d, want 1/3", resp.CrashCount, resp.CrashThreshold)
	}
	if len(resp.Jobs) != 2 || resp.Jobs[1].LastError == "" {
		t.Errorf("jobs = %+v", resp.Jobs)
	}
}
