// Package metrics exposes Prometheus counters for pipeline stage outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadgen"

// Stage labels.
const (
	StageIngest   = "ingest"
	StageQualify  = "qualify"
	StageOutreach = "outreach"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	// ItemsTotal counts per-item outcomes, e.g. {ingest, saved} or
	// {outreach, skipped}.
	ItemsTotal  *prometheus.CounterVec
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	CircuitOpen prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests and multiple instances do not collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Pipeline items by stage and outcome",
		}, []string{"stage", "outcome"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by stage and final status",
		}, []string{"stage", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "smtp_circuit_open",
			Help:      "1 while the SMTP circuit breaker is open",
		}),
		gatherer: reg,
	}
}

// Item records one item outcome. Safe on a nil receiver.
func (m *Metrics) Item(stage, outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(stage, outcome).Inc()
}

// Items adds n outcomes at once.
func (m *Metrics) Items(stage, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsTotal.WithLabelValues(stage, outcome).Add(float64(n))
}

// Run records a finished run.
func (m *Metrics) Run(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(stage, status).Inc()
	m.RunDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// SetCircuitOpen tracks the SMTP breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
