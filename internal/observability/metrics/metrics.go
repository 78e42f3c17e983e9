package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// Metrics owns the service registry: HTTP server metrics plus the query
// pipeline's outcome metrics. It satisfies the pipeline's metrics recorder.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal       *prometheus.CounterVec
	queryChunks      prometheus.Histogram
	queryDuration    prometheus.Histogram
	degradedTotal    *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	sheddedTotal     prometheus.Counter
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered queries by answer mode.",
		},
		[]string{"service", "mode"},
	)
	queryChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "query",
			Name:      "chunks_used",
			Help:      "Distribution of chunks used per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query pipeline duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "query",
			Name:      "degraded_total",
			Help:      "Total pipeline stage degradations by stage.",
		},
		[]string{"service", "stage"},
	)
	rateLimitedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sheddedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "shedded_total",
			Help:      "Total requests shed by the backpressure limit.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryChunks,
		queryDuration,
		degradedTotal,
		rateLimitedTotal,
		sheddedTotal,
	)

	return &Metrics{
		registry:         registry,
		service:          service,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		queryTotal:       queryTotal,
		queryChunks:      queryChunks,
		queryDuration:    queryDuration,
		degradedTotal:    degradedTotal,
		rateLimitedTotal: rateLimitedTotal,
		sheddedTotal:     sheddedTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveQuery(mode domain.AnswerMode, chunksUsed int, duration time.Duration) {
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	m.queryTotal.WithLabelValues(m.service, label).Inc()
	m.queryChunks.Observe(float64(chunksUsed))
	m.queryDuration.Observe(duration.Seconds())
}

func (m *Metrics) StageDegraded(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.degradedTotal.WithLabelValues(m.service, stage).Inc()
}

func (m *Metrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) RecordShedded() {
	m.sheddedTotal.Inc()
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/session/"):
		return "/v1/session/{session_id}"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}
