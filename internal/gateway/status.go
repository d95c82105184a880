package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Version        string      `json:"version,omitempty"`
	Uptime         int64       `json:"uptime_seconds"`
	CrashCount     int         `json:"crash_count"`
	CrashThreshold int         `json:"crash_threshold"`
	Jobs           []JobStatus `json:"jobs"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Version: g.version,
			Uptime:  int64(time.Since(g.startedAt) / time.Second),
			Jobs:    g.tracker.Snapshot(),
		}

		if g.crash != nil {
			resp.CrashCount = g.crash.Count()
			resp.CrashThreshold = g.crash.Threshold()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
