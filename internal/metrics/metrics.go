// Package metrics holds the Prometheus instruments for pipeline runs.
//
// Batch and single runs are short-lived processes, so the registry is exported
// as a node-exporter textfile at the end of a command instead of being scraped.
package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cfdwind/internal/logging"
	"cfdwind/internal/tactile"
)

const namespace = "cfdwind"

// Metrics contains every instrument the pipeline records into. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ObjectsAccepted  prometheus.Counter
	ArtifactsTotal   *prometheus.CounterVec
	SolverExecutions *prometheus.CounterVec
	SolverExitCode   prometheus.Gauge
	SolverDuration   prometheus.Histogram
}

// NewMetrics creates unregistered instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Pipeline runs by final status",
			},
			[]string{"status"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800, 7200},
			},
			[]string{"stage"},
		),

		ObjectsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "input",
				Name:      "objects_accepted_total",
				Help:      "Input objects accepted into a simulation domain",
			},
		),

		ArtifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "harvest",
				Name:      "artifacts_total",
				Help:      "Solver log artifacts looked up, by presence",
			},
			[]string{"artifact", "present"},
		),

		SolverExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "solver",
				Name:      "executions_total",
				Help:      "Solver process events (complete, killed, error)",
			},
			[]string{"event"},
		),

		SolverExitCode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "solver",
				Name:      "last_exit_code",
				Help:      "Exit code of the most recent solver run (-1 if unavailable)",
			},
		),

		SolverDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "solver",
				Name:      "duration_seconds",
				Help:      "Wall time of solver runs",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.StageDuration,
		m.ObjectsAccepted,
		m.ArtifactsTotal,
		m.SolverExecutions,
		m.SolverExitCode,
		m.SolverDuration,
	}
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordStage observes the duration of one stage.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAccepted adds n accepted input objects.
func (m *Metrics) RecordAccepted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObjectsAccepted.Add(float64(n))
}

// RecordArtifact counts one harvested log lookup.
func (m *Metrics) RecordArtifact(name string, present bool) {
	if m == nil {
		return
	}
	m.ArtifactsTotal.WithLabelValues(name, strconv.FormatBool(present)).Inc()
}

// ObserveExecution is a tactile audit callback. Start events are ignored.
func (m *Metrics) ObserveExecution(ev tactile.AuditEvent) {
	if m == nil || ev.Type == tactile.AuditEventStart {
		return
	}
	m.SolverExecutions.WithLabelValues(string(ev.Type)).Inc()
	if ev.Result == nil {
		return
	}
	m.SolverExitCode.Set(float64(ev.Result.ExitCode))
	if ev.Type != tactile.AuditEventError {
		m.SolverDuration.Observe(ev.Result.Duration.Seconds())
	}
}

// Registry owns a Prometheus registry with the run metrics and the Go
// runtime collectors registered on it.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	mu                 sync.Mutex
}

// NewRegistry creates a registry with every run metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
	}
	r.prometheusRegistry.MustRegister(r.Metrics.collectors()...)
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// WriteTextfile atomically writes the current state in the text exposition
// format. An empty path is a no-op.
func (r *Registry) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := prometheus.WriteToTextfile(path, r.prometheusRegistry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	logging.Get(logging.CategoryMetrics).Debug("Metrics written to %s", path)
	return nil
}
