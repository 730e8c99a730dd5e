// Package metrics holds the Prometheus instruments of the plan worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planintel"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	// Worker loop
	JobsClaimed   prometheus.Counter
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	LoopErrors    *prometheus.CounterVec
	Panics        prometheus.Counter

	// Pipeline
	PagesRendered prometheus.Counter
	PagesSelected prometheus.Histogram
	Repairs       prometheus.Counter
	ReviewFlags   *prometheus.CounterVec
}

// New registers all instruments on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all instruments on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.JobsClaimed = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_claimed_total",
		Help:      "Jobs moved from queued to processing by this worker",
	})
	m.JobsProcessed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Processed jobs by final status",
	}, []string{"status"})
	m.JobDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one job from claim to final status",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"status"})
	m.LoopErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "loop_errors_total",
		Help:      "Worker loop errors by stage",
	}, []string{"stage"})
	m.Panics = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "panics_recovered_total",
		Help:      "Panics recovered in the worker loop",
	})

	m.PagesRendered = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "pages_rendered_total",
		Help:      "PDF pages rendered to images",
	})
	m.PagesSelected = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "pages_selected",
		Help:      "Pages sent to the reasoning model per job",
		Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 25, 50},
	})
	m.Repairs = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "repairs_total",
		Help:      "Extraction results that needed auto-repair",
	})
	m.ReviewFlags = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "review_flags_total",
		Help:      "Review flags raised by reconciliation, by section",
	}, []string{"section"})

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Claimed() {
	if m == nil {
		return
	}
	m.JobsClaimed.Inc()
}

func (m *Metrics) ObserveJob(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(status).Inc()
	m.JobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) LoopError(stage string) {
	if m == nil {
		return
	}
	m.LoopErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

func (m *Metrics) Rendered(pages int) {
	if m == nil {
		return
	}
	m.PagesRendered.Add(float64(pages))
}

func (m *Metrics) Selected(pages int) {
	if m == nil {
		return
	}
	m.PagesSelected.Observe(float64(pages))
}

func (m *Metrics) Repaired() {
	if m == nil {
		return
	}
	m.Repairs.Inc()
}

func (m *Metrics) Flagged(section string) {
	if m == nil {
		return
	}
	m.ReviewFlags.WithLabelValues(section).Inc()
}
