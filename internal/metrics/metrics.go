// Package metrics exposes Prometheus collectors for roster loads and
// payment mutations on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rette"

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultBusy     = "busy"
	ResultNoop     = "noop"
	ResultSetup    = "setup_required"
	ResultRejected = "rejected"
)

// Metrics holds every collector. The zero value is not usable; a nil
// *Metrics is, and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LoadsTotal        *prometheus.CounterVec
	LoadDuration      prometheus.Histogram
	MutationsTotal    *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	MutationsInFlight prometheus.Gauge
	RosterRecords     prometheus.Gauge
	RecorderFailures  *prometheus.CounterVec
}

// New registers all collectors, plus Go and process collectors, on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "loads_total",
			Help:      "Roster loads by result.",
		}, []string{"result"}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "load_duration_seconds",
			Help:      "Duration of roster fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "mutations_total",
			Help:      "Payment mutations by operation and result.",
		}, []string{"operation", "result"}),
		MutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "mutation_duration_seconds",
			Help:      "Duration of remote payment calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		MutationsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "mutations_in_flight",
			Help:      "Remote payment calls awaiting a response.",
		}),
		RosterRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "records",
			Help:      "Records in the current roster snapshot.",
		}),
		RecorderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorder_failures_total",
			Help:      "Payment events a recorder failed to persist or publish.",
		}, []string{"recorder"}),
	}
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLoad(result string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.LoadDuration.Observe(d.Seconds())
		m.RosterRecords.Set(float64(records))
	}
}

func (m *Metrics) ObserveMutation(op, result string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, result).Inc()
}

// StartRemote marks a remote call in flight and returns a func that records
// its duration when it completes.
func (m *Metrics) StartRemote(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.MutationsInFlight.Inc()
	return func() {
		m.MutationsInFlight.Dec()
		m.MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecorderFailed(name string) {
	if m == nil {
		return
	}
	m.RecorderFailures.WithLabelValues(name).Inc()
}
