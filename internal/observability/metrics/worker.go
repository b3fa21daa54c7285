package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	writeTotal    *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	writeInFlight prometheus.Gauge
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	writeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driveagent",
			Subsystem: "worker",
			Name:      "memory_write_total",
			Help:      "Total persisted interaction events by status.",
		},
		[]string{"service", "status"},
	)
	writeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driveagent",
			Subsystem: "worker",
			Name:      "memory_write_duration_seconds",
			Help:      "Interaction persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	writeInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driveagent",
			Subsystem: "worker",
			Name:      "memory_write_in_flight",
			Help:      "Number of in-flight interaction persistence tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driveagent",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between interaction completion and persistence start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)

	registry.MustRegister(writeTotal, writeDuration, writeInFlight, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		writeTotal:    writeTotal,
		writeDuration: writeDuration,
		writeInFlight: writeInFlight,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartWrite() {
	m.writeInFlight.Inc()
}

func (m *WorkerMetrics) FinishWrite(service string, duration time.Duration, err error) {
	m.writeInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.writeTotal.WithLabelValues(service, status).Inc()
	m.writeDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
