package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"delivery_type"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"status"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	PaymentsMarkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_marked_total",
		Help: "Total number of payment status changes",
	}, []string{"status"})

	QueueJobsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_jobs_enqueued_total",
		Help: "Total number of jobs accepted by the task queue",
	})

	QueueJobAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_job_attempts_total",
		Help: "Total number of job executions by outcome",
	}, []string{"outcome"})

	QueueJobsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_jobs_exhausted_total",
		Help: "Total number of jobs dropped after exhausting retries",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Number of jobs currently waiting in the task queue",
	})

	GuestSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guest_sessions_active",
		Help: "Number of live guest sessions",
	})

	GuestSessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sessions_expired_total",
		Help: "Total number of guest sessions purged after expiry",
	})

	VerificationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_requests_total",
		Help: "Total number of contact verification requests",
	}, []string{"channel"})

	VerificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_failures_total",
		Help: "Total number of failed verification confirmations",
	}, []string{"reason"})

	EventBusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_bus_subscribers",
		Help: "Number of connected event stream subscribers",
	})

	EventBusDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_bus_dropped_subscribers_total",
		Help: "Total number of subscribers dropped for slow consumption",
	})

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
