package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// RateLimitRejections counts requests refused by the limiter, by action.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_rate_limit_rejections_total",
		Help: "Requests refused with 429 by the rate limiter",
	}, []string{"action"})

	// ApplicationsSubmitted counts created applications by submission path.
	ApplicationsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_applications_submitted_total",
		Help: "Total number of club applications created",
	}, []string{"path"})

	// ApplicationsReviewed counts review decisions by resulting status.
	ApplicationsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_applications_reviewed_total",
		Help: "Total number of application review decisions",
	}, []string{"status", "re_review"})

	// CapacityRejections counts submissions refused by the capacity gate.
	CapacityRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_capacity_rejections_total",
		Help: "Total number of integrated applications refused by the capacity gate",
	}, []string{"reason"})

	// NotificationsTotal counts notification intents by template and outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_notifications_total",
		Help: "Notification intents by template and outcome",
	}, []string{"template", "outcome"})

	// GalleryUploadsTotal counts gallery batch uploads by outcome.
	GalleryUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_gallery_uploads_total",
		Help: "Gallery album uploads by outcome",
	}, []string{"outcome"})

	// WebSocketConnectionsTotal is the gauge of open membership-event sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clubhub_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// TaskProcessed counts background tasks handled by the worker.
	TaskProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_task_processed_total",
		Help: "Background tasks processed by type and status",
	}, []string{"task_type", "status"})

	// TaskDuration observes background task handling time.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clubhub_task_duration_seconds",
		Help:    "Background task handling duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"task_type"})
)
