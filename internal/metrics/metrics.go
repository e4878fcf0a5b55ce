// Package metrics collects per-run counters and writes them in the
// Prometheus text format for a node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by Run.Item.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Run holds the counters for one command invocation.
type Run struct {
	registry *prometheus.Registry
	items    *prometheus.CounterVec
	quota    prometheus.Gauge
	duration prometheus.Gauge
	info     *prometheus.GaugeVec
	started  time.Time
}

// NewRun registers the run metrics on a private registry.
func NewRun(command, batchID string, started time.Time) *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytarchive",
			Name:      "items_total",
			Help:      "Entities processed by the last run, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		quota: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ytarchive",
			Name:      "api_quota_units",
			Help:      "YouTube Data API quota units spent by the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ytarchive",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ytarchive",
			Name:      "run_info",
			Help:      "Identity of the last run.",
		}, []string{"command", "batch_id"}),
		started: started,
	}
	r.registry.MustRegister(r.items, r.quota, r.duration, r.info)
	r.info.WithLabelValues(command, batchID).Set(1)
	return r
}

// Item counts one processed entity.
func (r *Run) Item(kind string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.items.WithLabelValues(kind, outcome).Inc()
}

// SetQuota records the API units spent.
func (r *Run) SetQuota(units int) {
	if r == nil {
		return
	}
	r.quota.Set(float64(units))
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile stamps the run duration and writes all metrics to path.
func (r *Run) WriteTextfile(path string, now time.Time) error {
	if r == nil || path == "" {
		return nil
	}
	r.duration.Set(now.Sub(r.started).Seconds())
	return prometheus.WriteToTextfile(path, r.registry)
}
