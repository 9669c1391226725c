// Package metrics defines the Prometheus instrumentation exposed on
// GET /metrics. Every metric lives under the "agent" namespace, one
// subsystem per component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Watcher: the event-log-polling loop per contract.
	WatcherPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "watcher",
		Name:      "polls_total",
		Help:      "Total getLogs poll attempts",
	}, []string{"label"})

	WatcherEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "watcher",
		Name:      "events_total",
		Help:      "Total decoded events observed",
	}, []string{"label", "event"})

	WatcherErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "watcher",
		Name:      "errors_total",
		Help:      "Total poll errors after retry classification",
	}, []string{"label", "class"})

	WatcherLagBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "watcher",
		Name:      "lag_blocks",
		Help:      "Blocks between the chain head and the last cursor committed",
	}, []string{"label"})

	WatcherPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "watcher",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a single poll cycle, including getLogs and decode",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"label"})

	// Sender: the FIFO transaction queue.
	SenderTxSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "sender",
		Name:      "tx_submitted_total",
		Help:      "Total transactions submitted to the chain",
	}, []string{"method"})

	SenderTxFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "sender",
		Name:      "tx_failed_total",
		Help:      "Total transactions that reverted or failed to confirm",
	}, []string{"method"})

	SenderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "sender",
		Name:      "queue_depth",
		Help:      "Current depth of the pending transaction queue",
	})

	SenderConfirmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "sender",
		Name:      "confirm_duration_seconds",
		Help:      "Time from submission to receipt confirmation",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method"})

	// Router: request fulfillment dispatch.
	RouterRequestsRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "router",
		Name:      "requests_routed_total",
		Help:      "Total requests dispatched to a handler",
	}, []string{"handler_class"})

	RouterRequestsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "router",
		Name:      "requests_rejected_total",
		Help:      "Total requests rejected before dispatch",
	}, []string{"reason"})

	RouterHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "router",
		Name:      "handler_duration_seconds",
		Help:      "Handler execution duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"handler_class"})

	RouterInFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "router",
		Name:      "in_flight_requests",
		Help:      "Requests currently claimed in the single-flight set",
	})

	// Keepalive: the subscription-renewal driver.
	KeepaliveCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "keepalive",
		Name:      "cycles_total",
		Help:      "Total keepalive fulfillment attempts",
	}, []string{"outcome"})

	KeepaliveDueGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "keepalive",
		Name:      "due_subscriptions",
		Help:      "Subscriptions currently due for fulfillment",
	})

	// Sweeper and other maintenance loops.
	SweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "sweeper",
		Name:      "runs_total",
		Help:      "Total maintenance-loop runs",
	}, []string{"loop", "outcome"})

	SweeperLastRunUnix = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "sweeper",
		Name:      "last_run_unix_seconds",
		Help:      "Unix timestamp of the last successful maintenance-loop run",
	}, []string{"loop"})

	// Cache: the state-snapshot cache and supporting LRUs.
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"cache"})

	CacheAgeMillis = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "cache",
		Name:      "snapshot_age_milliseconds",
		Help:      "Age of the currently published AppStateSnapshot",
	})

	CacheRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "cache",
		Name:      "refresh_duration_seconds",
		Help:      "Duration of a full snapshot refresh",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// RPC rate limiter, shared across all subsystems that call the chain.
	RPCRateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times an RPC call waited for the rate limiter",
	}, []string{"caller"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total RPC calls by call class and outcome classification",
	}, []string{"class", "method", "outcome"})

	// Alerts.
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})

	// Reconciliation.
	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "reconciliation",
		Name:      "runs_total",
		Help:      "Total reconciliation runs executed",
	}, []string{"outcome"})

	ReconciliationMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "reconciliation",
		Name:      "mismatches_total",
		Help:      "Total status mismatches detected between local state and chain",
	})

	// Circuit breakers, one per chain-call class (read/write/estimate).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "circuitbreaker",
		Name:      "state",
		Help:      "Current breaker state by name: 0=closed, 1=open, 2=half-open",
	}, []string{"name"})
)
