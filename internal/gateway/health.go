package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status         string      `json:"status"`
	CrashCount     int         `json:"crash_count"`
	CrashThreshold int         `json:"crash_threshold"`
	Jobs           []JobStatus `json:"jobs"`
}

// handleHealth reports liveness. The gateway only runs while the breaker is
// below its threshold, so a served request always reports "ok"; the crash
// count shows how many of the allowed failures have been used.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Jobs:   g.tracker.Snapshot(),
		}
		if g.crash != nil {
			resp.CrashCount = g.crash.Count()
			resp.CrashThreshold = g.crash.Threshold()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
