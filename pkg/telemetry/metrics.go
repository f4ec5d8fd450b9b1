package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for device operations. A nil
// *Metrics is valid and records nothing, so callers never need to guard.
type Metrics struct {
	config MetricsConfig

	actionsIssued     *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pollCycles        *prometheus.CounterVec
	monitorTimeouts   *prometheus.CounterVec
	benignReclass     *prometheus.CounterVec
	gateVetoes        *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a metrics collector on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		actionsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_issued_total",
				Help:      "Mutating transport actions issued, by action and target",
			},
			[]string{"device", "action", "target"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Public orchestration operations, by outcome",
			},
			[]string{"device", "operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of public orchestration operations",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"device", "operation"},
		),
		pollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Poll-until-state cycles executed, by loop",
			},
			[]string{"device", "loop"},
		),
		monitorTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_monitor_timeouts_total",
				Help:      "Task monitors that timed out with the task still running",
			},
			[]string{"device"},
		),
		benignReclass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "benign_reclassifications_total",
				Help:      "Non-zero exits reclassified to success by benign markers",
			},
			[]string{"device"},
		),
		gateVetoes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_gate_vetoes_total",
				Help:      "Operations skipped by the DOT security gate",
			},
			[]string{"device", "operation"},
		),
	}

	registry.MustRegister(
		m.actionsIssued,
		m.operationsTotal,
		m.operationDuration,
		m.pollCycles,
		m.monitorTimeouts,
		m.benignReclass,
		m.gateVetoes,
	)

	return m, nil
}

// Serve starts the metrics HTTP listener when one is configured.
func (m *Metrics) Serve() error {
	if m == nil || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = m.server.ListenAndServe()
	}()
	return nil
}

// Close stops the metrics listener.
func (m *Metrics) Close() error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Close()
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ActionIssued records one mutating transport action.
func (m *Metrics) ActionIssued(device, action, target string) {
	if m == nil {
		return
	}
	m.actionsIssued.WithLabelValues(device, action, target).Inc()
}

// OperationFinished records the outcome and duration of a public operation.
func (m *Metrics) OperationFinished(device, operation string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.operationsTotal.WithLabelValues(device, operation, outcome).Inc()
	m.operationDuration.WithLabelValues(device, operation).Observe(elapsed.Seconds())
}

// PollCycle records one iteration of a poll-until-state loop.
func (m *Metrics) PollCycle(device, loop string) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(device, loop).Inc()
}

// MonitorTimeout records a task monitor giving up on a running task.
func (m *Metrics) MonitorTimeout(device string) {
	if m == nil {
		return
	}
	m.monitorTimeouts.WithLabelValues(device).Inc()
}

// BenignReclassification records a non-zero exit treated as success.
func (m *Metrics) BenignReclassification(device string) {
	if m == nil {
		return
	}
	m.benignReclass.WithLabelValues(device).Inc()
}

// GateVeto records an operation skipped by the security gate.
func (m *Metrics) GateVeto(device, operation string) {
	if m == nil {
		return
	}
	m.gateVetoes.WithLabelValues(device, operation).Inc()
}
