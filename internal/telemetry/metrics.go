// Package telemetry holds the Prometheus collectors and OpenTelemetry tracer
// setup shared by the backup jobs, the HTTP client, and the status gateway.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ghbkp"

// Metrics groups the process collectors. A nil *Metrics is valid and
// records nothing, so components can be built without telemetry in tests.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	archiveBytes *prometheus.CounterVec
	crashCount   prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry, together with
// the standard Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Backup job cycles by job and outcome (skipped, success, failure).",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of backup transfers that actually ran.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Outbound HTTP requests by method and status code (\"error\" for transport failures).",
		}, []string{"method", "code"}),
		archiveBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Bytes written to archive files by job.",
		}, []string{"job"}),
		crashCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "crash_counter",
			Help:      "Consecutive failed runs recorded by the crash-loop breaker.",
		}),
	}

	reg.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.httpRequests,
		m.archiveBytes,
		m.crashCount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors, for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveJob records the outcome of one job cycle. ran is false when the
// window gate skipped the transfer.
func (m *Metrics) ObserveJob(job string, ran bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case !ran:
		outcome = "skipped"
	case err != nil:
		outcome = "failure"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if ran {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// RecordHTTP records one outbound request. code is 0 for transport errors.
func (m *Metrics) RecordHTTP(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.httpRequests.WithLabelValues(method, label).Inc()
}

// AddArchiveBytes adds n bytes written by job.
func (m *Metrics) AddArchiveBytes(job string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.archiveBytes.WithLabelValues(job).Add(float64(n))
}

// SetCrashCount publishes the breaker counter.
func (m *Metrics) SetCrashCount(n int) {
	if m == nil {
		return
	}
	m.crashCount.Set(float64(n))
}
