// Package metrics exposes the Prometheus instrumentation for the relay.
// All metrics live under the relay_ prefix and register themselves on the
// default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound webhooks by provider and outcome
	// (accepted, ignored, invalid_signature, parse_error).
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_webhooks_received_total",
		Help: "Inbound webhooks by provider and outcome",
	}, []string{"provider", "outcome"})

	// ValidationDisabled is 1 for providers running without signature
	// verification.
	ValidationDisabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_webhook_validation_disabled",
		Help: "1 when signature validation is disabled for a provider",
	}, []string{"provider"})

	// QueueDepth tracks the number of waiting tasks.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Tasks currently waiting in the queue",
	})

	// TasksEnqueued counts tasks by provider and priority.
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tasks_enqueued_total",
		Help: "Tasks enqueued by provider and priority",
	}, []string{"provider", "priority"})

	// TasksCompleted counts finished tasks by provider and status
	// (success, failure, binary_missing).
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tasks_completed_total",
		Help: "Tasks completed by provider and status",
	}, []string{"provider", "status"})

	// TaskDuration observes end-to-end agent execution time.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_task_duration_seconds",
		Help:    "Agent execution time per task",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"provider"})

	// TaskCostUSD accumulates reported agent spend.
	TaskCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_task_cost_usd_total",
		Help: "Cumulative agent cost in USD by provider",
	}, []string{"provider"})

	// ResultsPosted counts result posting attempts by provider and outcome
	// (posted, failed).
	ResultsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_results_posted_total",
		Help: "Result posts by provider and outcome",
	}, []string{"provider", "outcome"})

	// BreakerState reports circuit breaker state per target
	// (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_circuit_breaker_state",
		Help: "Circuit breaker state per target (0=closed 1=open 2=half_open)",
	}, []string{"target"})

	// WorkersBusy tracks workers currently executing a task.
	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_workers_busy",
		Help: "Workers currently executing a task",
	})
)
