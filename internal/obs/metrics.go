package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors exposed by the engine.
type Metrics struct {
	WorkflowExecutionsTotal  *prometheus.CounterVec
	ActiveWorkflowExecutions *prometheus.GaugeVec
	ExecutionDuration        *prometheus.HistogramVec

	StepExecutionsTotal  *prometheus.CounterVec
	StepExecutionDuration *prometheus.HistogramVec
	ActiveStepExecutions *prometheus.GaugeVec
	StepRetriesTotal     *prometheus.CounterVec

	PendingQueueDepth *prometheus.GaugeVec
	WorkerPoolInUse   *prometheus.GaugeVec

	ErrorsTotal *prometheus.CounterVec

	PersistenceWritesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns the engine's Prometheus collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		WorkflowExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowengine_workflow_executions_total",
				Help: "Total number of workflow executions by terminal status",
			},
			[]string{"workflow_id", "status"},
		),
		ActiveWorkflowExecutions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowengine_active_workflow_executions",
				Help: "Number of executions currently active (queued, running or paused)",
			},
			[]string{"workflow_id"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowengine_execution_duration_seconds",
				Help:    "Duration of workflow executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow_id", "discipline"},
		),
		StepExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowengine_step_executions_total",
				Help: "Total number of step attempts by terminal status",
			},
			[]string{"agent_id", "status"},
		),
		StepExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowengine_step_execution_duration_seconds",
				Help:    "Duration of individual step attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"agent_id"},
		),
		ActiveStepExecutions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowengine_active_step_executions",
				Help: "Number of step attempts currently in flight",
			},
			[]string{"agent_id"},
		),
		StepRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowengine_step_retries_total",
				Help: "Total number of step retry attempts",
			},
			[]string{"agent_id"},
		),
		PendingQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowengine_pending_queue_depth",
				Help: "Number of executions waiting for a free worker",
			},
			[]string{},
		),
		WorkerPoolInUse: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowengine_worker_pool_in_use",
				Help: "Number of worker slots currently occupied",
			},
			[]string{},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowengine_errors_total",
				Help: "Total number of errors by component and kind",
			},
			[]string{"component", "kind"},
		),
		PersistenceWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowengine_persistence_writes_total",
				Help: "Total number of execution snapshot writes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordError increments the generic error counter for a component/kind pair.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorsTotal.WithLabelValues(component, kind).Inc()
}
