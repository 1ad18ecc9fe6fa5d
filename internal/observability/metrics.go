package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the ingress API, the delivery
// workers, the reconciler, and the callback dispatcher.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	notificationsSentTotal   *prometheus.CounterVec
	notificationsFailedTotal *prometheus.CounterVec
	notificationSendDuration *prometheus.HistogramVec
	workerInflight           *prometheus.GaugeVec
	retryScheduledTotal      *prometheus.CounterVec
	queueDepth               *prometheus.GaugeVec
	queueInflight            *prometheus.GaugeVec
	queueReclaimedTotal      *prometheus.CounterVec
	receiptsProcessedTotal   *prometheus.CounterVec
	receiptsRequeuedTotal    *prometheus.CounterVec
	receiptLag               *prometheus.HistogramVec
	callbacksSentTotal       *prometheus.CounterVec
	callbacksFailedTotal     *prometheus.CounterVec
	callbackLatency          *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "delivery_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "notifications_sent_total",
				Help:      "Total number of notifications handed to a provider successfully.",
			},
			[]string{"channel", "provider"},
		),
		notificationsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "notifications_failed_total",
				Help:      "Total number of notifications that ended in a failure status.",
			},
			[]string{"channel", "reason"},
		),
		notificationSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "delivery_engine",
				Name:      "notification_send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "delivery_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by channel.",
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of notifications scheduled for retry.",
			},
			[]string{"channel"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "delivery_engine",
				Name:      "queue_depth",
				Help:      "Current inbox depth per lane.",
			},
			[]string{"lane"},
		),
		queueInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "delivery_engine",
				Name:      "queue_inflight",
				Help:      "Current number of unacknowledged in-flight batches per lane.",
			},
			[]string{"lane"},
		),
		queueReclaimedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "queue_reclaimed_total",
				Help:      "Total number of expired in-flight batches returned to an inbox.",
			},
			[]string{"lane"},
		),
		receiptsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "receipts_processed_total",
				Help:      "Total number of provider delivery receipts reconciled by outcome status.",
			},
			[]string{"provider", "status"},
		),
		receiptsRequeuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "receipts_requeued_total",
				Help:      "Total number of receipts requeued because the referenced notification was not found yet.",
			},
			[]string{"provider"},
		),
		receiptLag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "delivery_engine",
				Name:      "receipt_lag_seconds",
				Help:      "Time from provider handoff to receipt reconciliation in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"provider"},
		),
		callbacksSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "callbacks_sent_total",
				Help:      "Total number of service callbacks delivered.",
			},
			[]string{"type"},
		),
		callbacksFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_engine",
				Name:      "callbacks_failed_total",
				Help:      "Total number of service callback attempts that failed.",
			},
			[]string{"type", "reason"},
		),
		callbackLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "delivery_engine",
				Name:      "callback_latency_seconds",
				Help:      "Time from notification creation to callback delivery in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsSentTotal,
		m.notificationsFailedTotal,
		m.notificationSendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.queueDepth,
		m.queueInflight,
		m.queueReclaimedTotal,
		m.receiptsProcessedTotal,
		m.receiptsRequeuedTotal,
		m.receiptLag,
		m.callbacksSentTotal,
		m.callbacksFailedTotal,
		m.callbackLatency,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationSent(channel, provider string) {
	if m == nil {
		return
	}
	m.notificationsSentTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncNotificationFailed(channel, reason string) {
	if m == nil {
		return
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveNotificationSendDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.notificationSendDuration.WithLabelValues(normalizeLabel(provider)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(channel)).Dec()
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) SetQueueDepth(lane string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(lane)).Set(float64(depth))
}

func (m *Metrics) SetQueueInFlight(lane string, count int64) {
	if m == nil {
		return
	}
	m.queueInflight.WithLabelValues(normalizeLabel(lane)).Set(float64(count))
}

func (m *Metrics) AddQueueReclaimed(lane string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.queueReclaimedTotal.WithLabelValues(normalizeLabel(lane)).Add(float64(count))
}

func (m *Metrics) IncReceiptProcessed(provider, status string) {
	if m == nil {
		return
	}
	m.receiptsProcessedTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncReceiptRequeued(provider string) {
	if m == nil {
		return
	}
	m.receiptsRequeuedTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) ObserveReceiptLag(provider string, lag time.Duration) {
	if m == nil {
		return
	}
	seconds := lag.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.receiptLag.WithLabelValues(normalizeLabel(provider)).Observe(seconds)
}

func (m *Metrics) IncCallbackSent(callbackType string) {
	if m == nil {
		return
	}
	m.callbacksSentTotal.WithLabelValues(normalizeLabel(callbackType)).Inc()
}

func (m *Metrics) IncCallbackFailed(callbackType, reason string) {
	if m == nil {
		return
	}
	m.callbacksFailedTotal.WithLabelValues(normalizeLabel(callbackType), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveCallbackLatency(callbackType string, latency time.Duration) {
	if m == nil {
		return
	}
	seconds := latency.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.callbackLatency.WithLabelValues(normalizeLabel(callbackType)).Observe(seconds)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
