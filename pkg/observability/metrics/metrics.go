// Package metrics collects Prometheus metrics for workflow and node
// executions and serves them over the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

// Metrics holds the engine's Prometheus collectors on a private registry,
// so tests and embedded servers never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	nodesTotal       *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		workflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "workflows_total",
			Help:      "Total number of finished workflow executions",
		}, []string{"status"}),
		workflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskweave",
			Name:      "workflow_duration_seconds",
			Help:      "Wall-clock duration of workflow executions",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		}, []string{"status"}),
		nodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "nodes_total",
			Help:      "Total number of finished node executions",
		}, []string{"tool", "status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskweave",
			Name:      "node_duration_seconds",
			Help:      "Wall-clock duration of node executions",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 60.0},
		}, []string{"tool"}),
	}
}

// ObserveWorkflow records one finished workflow execution.
func (m *Metrics) ObserveWorkflow(status workflow.Status, duration time.Duration) {
	m.workflowsTotal.WithLabelValues(string(status)).Inc()
	m.workflowDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// ObserveNode records one finished node execution.
func (m *Metrics) ObserveNode(tool string, status workflow.Status, duration time.Duration) {
	m.nodesTotal.WithLabelValues(tool, string(status)).Inc()
	m.nodeDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
