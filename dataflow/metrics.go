package dataflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// scheduler monitoring in production environments.
//
// Metrics exposed (all namespaced with "dataflow_"):
//
//  1. inflight_nodes (gauge): nodes currently dispatched to the executor.
//     Labels: run_id.
//  2. queue_depth (gauge): orders waiting in the ready queue.
//     Labels: run_id.
//  3. step_latency_ms (histogram): node activation-to-completion duration.
//     Labels: run_id, node_id, status (success/error).
//  4. circular_recruitment_total (counter): CircularRecruitment failures.
//     Labels: run_id, node_id.
//  5. backpressure_events_total (counter): ready-queue saturation events.
//     Labels: run_id, reason.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	circularRecruitment *prometheus.CounterVec
	backpressure        *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all scheduler metrics with the
// provided Prometheus registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes dispatched to the executor",
	})

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "queue_depth",
		Help:      "Number of orders waiting in the scheduler's ready queue",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dataflow",
		Name:      "step_latency_ms",
		Help:      "Node activation-to-completion duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	pm.circularRecruitment = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "circular_recruitment_total",
		Help:      "Count of CircularRecruitment failures raised by the scheduler",
	}, []string{"run_id", "node_id"})

	pm.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "backpressure_events_total",
		Help:      "Ready-queue saturation events where dispatch was throttled",
	}, []string{"run_id", "reason"}) // reason: queue_full, max_inflight

	return pm
}

// RecordStepLatency records a node's activation-to-completion duration.
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.enabled {
		return
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// UpdateQueueDepth sets the current ready-queue length.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.enabled {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets the current in-flight node count.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.enabled {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

// IncrementCircularRecruitment records a CircularRecruitment failure.
func (pm *PrometheusMetrics) IncrementCircularRecruitment(runID, nodeID string) {
	if !pm.enabled {
		return
	}
	pm.circularRecruitment.WithLabelValues(runID, nodeID).Inc()
}

// IncrementBackpressure records a ready-queue saturation event.
func (pm *PrometheusMetrics) IncrementBackpressure(runID, reason string) {
	if !pm.enabled {
		return
	}
	pm.backpressure.WithLabelValues(runID, reason).Inc()
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears gauge values. Counters and histograms are cumulative by
// Prometheus design and are not reset.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightNodes.Set(0)
	pm.queueDepth.Set(0)
}
