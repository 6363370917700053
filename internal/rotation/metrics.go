package rotation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records run statistics in a private Prometheus registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	routingTotal *prometheus.CounterVec
	sourcesTotal *prometheus.CounterVec
	portsSkipped prometheus.Counter
}

// NewMetrics registers the run metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passup_jobs_total",
				Help: "Total number of rotation jobs by outcome",
			},
			[]string{"source", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passup_job_duration_seconds",
				Help:    "Duration of automation subprocesses in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source"},
		),
		routingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passup_entries_total",
				Help: "Parsed entries by routing decision",
			},
			[]string{"source", "decision"},
		),
		sourcesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passup_sources_total",
				Help: "Processed sources by final status",
			},
			[]string{"status"},
		),
		portsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "passup_ports_skipped_total",
				Help: "Ports skipped because they failed the bind probe",
			},
		),
	}
}

// RecordJob records one finished job.
func (m *Metrics) RecordJob(source string, outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(source, string(outcome)).Inc()
	m.jobDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordRouting records the routing decision for one entry.
func (m *Metrics) RecordRouting(source, decision string) {
	if m == nil {
		return
	}
	m.routingTotal.WithLabelValues(source, decision).Inc()
}

// RecordSource records the final status of a source.
func (m *Metrics) RecordSource(status SourceStatus) {
	if m == nil {
		return
	}
	m.sourcesTotal.WithLabelValues(string(status)).Inc()
}

// RecordPortSkipped counts a port that failed the bind probe.
func (m *Metrics) RecordPortSkipped() {
	if m == nil {
		return
	}
	m.portsSkipped.Inc()
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
