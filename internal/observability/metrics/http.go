package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	agentRunsTotal      *prometheus.CounterVec
	agentIterations     *prometheus.HistogramVec
	agentToolCallsTotal *prometheus.CounterVec

	pendingStagedTotal   *prometheus.CounterVec
	pendingConsumedTotal *prometheus.CounterVec
	pendingExpiredTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driveagent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driveagent",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed agent runs by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	agentIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driveagent",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Distribution of planner loop iterations per run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
		},
		[]string{"service", "mode"},
	)
	agentToolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls performed by the agent.",
		},
		[]string{"service", "tool", "status"},
	)
	pendingStagedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "ledger",
			Name:      "staged_total",
			Help:      "Total pending actions staged for confirmation.",
		},
		[]string{"service"},
	)
	pendingConsumedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "ledger",
			Name:      "consumed_total",
			Help:      "Total pending actions consumed by outcome.",
		},
		[]string{"service", "outcome"},
	)
	pendingExpiredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "ledger",
			Name:      "expired_total",
			Help:      "Total pending actions removed by expiry sweep.",
		},
		[]string{"service"},
	)
	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		agentRunsTotal,
		agentIterations,
		agentToolCallsTotal,
		pendingStagedTotal,
		pendingConsumedTotal,
		pendingExpiredTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		agentRunsTotal:       agentRunsTotal,
		agentIterations:      agentIterations,
		agentToolCallsTotal:  agentToolCallsTotal,
		pendingStagedTotal:   pendingStagedTotal,
		pendingConsumedTotal: pendingConsumedTotal,
		pendingExpiredTotal:  pendingExpiredTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordAgentRun(service, mode, status string, iterations int) {
	if status == "" {
		status = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(service, mode, status).Inc()
	if iterations > 0 {
		m.agentIterations.WithLabelValues(service, mode).Observe(float64(iterations))
	}
}

func (m *HTTPServerMetrics) RecordAgentToolCall(service, tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.agentToolCallsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *HTTPServerMetrics) RecordPendingStaged(service string) {
	m.pendingStagedTotal.WithLabelValues(service).Inc()
}

// RecordPendingConsumed outcome is "confirmed" or "rejected".
func (m *HTTPServerMetrics) RecordPendingConsumed(service, outcome string) {
	m.pendingConsumedTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordPendingExpired(service string, count int) {
	if count <= 0 {
		return
	}
	m.pendingExpiredTotal.WithLabelValues(service).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
