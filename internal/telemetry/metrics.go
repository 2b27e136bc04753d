package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration records request latency by method, route and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "brokkr",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// ReconcileTickDuration records agent reconciliation tick latency.
var ReconcileTickDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "brokkr",
		Subsystem: "agent",
		Name:      "reconcile_tick_duration_seconds",
		Help:      "Duration of a single agent reconciliation tick.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// WorkOrderClaims counts work-order claim attempts by outcome (won/empty).
var WorkOrderClaims = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokkr",
		Subsystem: "workorder",
		Name:      "claims_total",
		Help:      "Work-order claim attempts by outcome.",
	},
	[]string{"outcome"},
)

// WebhookDeliveries counts webhook delivery attempts by outcome.
var WebhookDeliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokkr",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook delivery attempts by outcome.",
	},
	[]string{"outcome"},
)

// Collector is anything that can be registered into a Prometheus registry.
type Collector = prometheus.Collector

// NewMetricsRegistry builds a Prometheus registry with the Go/process
// collectors plus Brokkr's own collectors and any extras supplied.
func NewMetricsRegistry(extra ...Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(HTTPRequestDuration, ReconcileTickDuration, WorkOrderClaims, WebhookDeliveries)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
