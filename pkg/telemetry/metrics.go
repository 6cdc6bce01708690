package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for orchestration runs. A
// disabled configuration yields a no-op instance whose methods are
// safe to call.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	phaseDuration *prometheus.HistogramVec

	componentsSynthesized *prometheus.CounterVec
	bindingsApplied       *prometheus.CounterVec
	policyViolations      *prometheus.CounterVec
	errorsByKind          *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of orchestration runs started",
			},
			[]string{"framework", "environment"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of orchestration runs completed",
			},
			[]string{"framework", "environment", "phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Orchestration run duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"framework"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Per-phase duration within a run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		componentsSynthesized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "components_synthesized_total",
				Help:      "Total number of components synthesized",
			},
			[]string{"type"},
		),
		bindingsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bindings_applied_total",
				Help:      "Total number of binding directives applied",
			},
			[]string{"strategy"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of governance violations found",
			},
			[]string{"rule", "severity"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of fatal run errors by kind",
			},
			[]string{"kind", "code"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of orchestration runs in flight",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.phaseDuration,
		m.componentsSynthesized, m.bindingsApplied,
		m.policyViolations, m.errorsByKind,
		m.activeRuns,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// RunStarted records the start of a run.
func (m *Metrics) RunStarted(framework, environment string) {
	if !m.Enabled() {
		return
	}
	m.runsStarted.WithLabelValues(framework, environment).Inc()
	m.activeRuns.Inc()
}

// RunCompleted records a finished run and its terminal phase.
func (m *Metrics) RunCompleted(framework, environment, phase string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(framework, environment, phase).Inc()
	m.runDuration.WithLabelValues(framework).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// PhaseCompleted records one phase's duration.
func (m *Metrics) PhaseCompleted(phase string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// ComponentSynthesized records one synthesized component.
func (m *Metrics) ComponentSynthesized(componentType string) {
	if !m.Enabled() {
		return
	}
	m.componentsSynthesized.WithLabelValues(componentType).Inc()
}

// BindingApplied records one applied binding.
func (m *Metrics) BindingApplied(strategy string) {
	if !m.Enabled() {
		return
	}
	m.bindingsApplied.WithLabelValues(strategy).Inc()
}

// PolicyViolation records one governance finding.
func (m *Metrics) PolicyViolation(rule, severity string) {
	if !m.Enabled() {
		return
	}
	m.policyViolations.WithLabelValues(rule, severity).Inc()
}

// RunError records a fatal run error.
func (m *Metrics) RunError(kind, code string) {
	if !m.Enabled() {
		return
	}
	m.errorsByKind.WithLabelValues(kind, code).Inc()
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
