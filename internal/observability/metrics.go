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

const namespace = "claim_validation"

// Metrics stores Prometheus collectors used by the API, orchestrator and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	runsCompletedTotal     *prometheus.CounterVec
	recordsMovedTotal      prometheus.Counter
	completionWaitsTotal   *prometheus.CounterVec
	completionWaitDuration prometheus.Histogram
	responsesCreatedTotal  prometheus.Counter
	workerMessagesTotal    *prometheus.CounterVec
	validatorCallDuration  prometheus.Histogram
	workerInflight         prometheus.Gauge
	batchesClaimedTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		runsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of closed runs grouped by outcome (advanced, repeated, complete).",
			},
			[]string{"outcome"},
		),
		recordsMovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_moved_total",
				Help:      "Total number of records re-homed into a following run.",
			},
		),
		completionWaitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_waits_total",
				Help:      "Total number of completion waits grouped by outcome.",
			},
			[]string{"outcome"},
		),
		completionWaitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_wait_duration_seconds",
				Help:      "Time spent waiting for a run to drain or go idle.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
			},
		),
		responsesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_created_total",
				Help:      "Total number of validation responses persisted.",
			},
		),
		workerMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_total",
				Help:      "Total number of record messages handled by workers grouped by result.",
			},
			[]string{"result"},
		),
		validatorCallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validator_call_duration_seconds",
				Help:      "Claim validator call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_inflight",
				Help:      "Current number of records being validated.",
			},
		),
		batchesClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_claimed_total",
				Help:      "Total number of pending batches picked up by the orchestrator.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.runsCompletedTotal,
		m.recordsMovedTotal,
		m.completionWaitsTotal,
		m.completionWaitDuration,
		m.responsesCreatedTotal,
		m.workerMessagesTotal,
		m.validatorCallDuration,
		m.workerInflight,
		m.batchesClaimedTotal,
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
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) ObserveRunCompleted(outcome string, moved int64) {
	if m == nil {
		return
	}
	m.runsCompletedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
	if moved > 0 {
		m.recordsMovedTotal.Add(float64(moved))
	}
}

func (m *Metrics) ObserveCompletionWait(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.completionWaitsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.completionWaitDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncResponseCreated() {
	if m == nil {
		return
	}
	m.responsesCreatedTotal.Inc()
}

func (m *Metrics) IncWorkerMessage(result string) {
	if m == nil {
		return
	}
	m.workerMessagesTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveValidatorCall(duration time.Duration) {
	if m == nil {
		return
	}
	m.validatorCallDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncBatchClaimed() {
	if m == nil {
		return
	}
	m.batchesClaimedTotal.Inc()
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

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
