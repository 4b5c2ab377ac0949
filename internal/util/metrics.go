package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	OrderRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_workflow_rejections_total",
		Help: "Total number of workflow requests rejected by a domain rule",
	}, []string{"operation", "reason"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Total number of payment status changes by outcome",
	}, []string{"status"})

	PaymentProofsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_proofs_submitted_total",
		Help: "Total number of payment proofs submitted",
	})

	StockDecrementsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_decrements_failed_total",
		Help: "Total number of conditional stock decrements that found insufficient stock",
	})

	StockRestockedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_restocked_units_total",
		Help: "Total number of units returned to stock by cancellations",
	})

	WorkflowLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_workflow_latency_seconds",
		Help:    "Latency of transactional order and payment workflows",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Total number of outbox events published to Kafka",
	}, []string{"event_type"})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Total number of outbox events that failed to publish",
	})

	StockCacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_invalidations_total",
		Help: "Total number of stock cache invalidations by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
