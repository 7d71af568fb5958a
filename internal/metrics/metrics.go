// Package metrics holds the Prometheus collectors spanscope exposes on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh results recorded by ListRefreshes.
const (
	RefreshOK      = "ok"
	RefreshFailed  = "failed"
	RefreshStale   = "stale"
	RefreshSkipped = "skipped"
)

// Metrics groups the collectors shared by the backend clients and view models.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ListRefreshes   *prometheus.CounterVec
	DetailLoads     *prometheus.CounterVec
	BackendRequests *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ListRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spanscope",
			Name:      "list_refreshes_total",
			Help:      "Recent-traces refreshes by result.",
		}, []string{"result"}),
		DetailLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spanscope",
			Name:      "detail_loads_total",
			Help:      "Trace detail loads by resulting view status.",
		}, []string{"status"}),
		BackendRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spanscope",
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of requests to the trace-query backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.ListRefreshes, m.DetailLoads, m.BackendRequests)
	}
	return m
}

// ObserveRefresh counts one list refresh outcome.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.ListRefreshes.WithLabelValues(result).Inc()
}

// ObserveDetail counts one detail load by status.
func (m *Metrics) ObserveDetail(status string) {
	if m == nil {
		return
	}
	m.DetailLoads.WithLabelValues(status).Inc()
}

// ObserveBackend records how long a backend call took.
func (m *Metrics) ObserveBackend(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BackendRequests.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}
