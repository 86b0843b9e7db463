package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_requests_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// Authentication metrics
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"}, // success or failure
	)

	// Distribution metrics
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_downloads_total",
			Help: "Total number of document download authorizations",
		},
		[]string{"result"}, // granted/forbidden/not_found/error
	)

	notificationReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_reads_total",
			Help: "Total number of notification read flips",
		},
		[]string{"trigger"}, // explicit or download
	)

	// Identity cache metrics
	identityCacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_cache_operations_total",
			Help: "Total number of identity cache lookups",
		},
		[]string{"result"}, // hit, miss, expired
	)

	// Rate limiting metrics
	rateLimitDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_dropped_total",
			Help: "Total number of requests dropped due to rate limiting",
		},
		[]string{"key_type"}, // user or ip
	)

	// Store metrics
	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Credential/resource store call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"store", "operation", "status"},
	)
)

// Init registers the metrics
func Init() error {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		loginsTotal,
		downloadsTotal,
		notificationReadsTotal,
		identityCacheOps,
		rateLimitDroppedTotal,
		storeOperationDuration,
	)

	return nil
}

// HTTPMetricsMiddleware records HTTP metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Record metrics
		duration := time.Since(start).Seconds()
		method := c.Method()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)

		return err
	}
}

// RecordLogin records a login attempt outcome
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordDownload records a download authorization outcome
func RecordDownload(result string) {
	downloadsTotal.WithLabelValues(result).Inc()
}

// RecordNotificationRead records a read-flag flip and what triggered it
func RecordNotificationRead(trigger string) {
	notificationReadsTotal.WithLabelValues(trigger).Inc()
}

// RecordCacheLookup records an identity cache lookup outcome
func RecordCacheLookup(result string) {
	identityCacheOps.WithLabelValues(result).Inc()
}

// RecordRateLimitDrop records rate limit drops
func RecordRateLimitDrop(keyType string) {
	rateLimitDroppedTotal.WithLabelValues(keyType).Inc()
}

// RecordStoreOperation records store call latency
func RecordStoreOperation(store, operation, status string, duration time.Duration) {
	storeOperationDuration.WithLabelValues(store, operation, status).Observe(duration.Seconds())
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
