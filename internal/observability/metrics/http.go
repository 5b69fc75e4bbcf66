package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itrag"

// knownRoutes bounds the path label; anything else is reported as "other".
var knownRoutes = map[string]struct{}{
	"/healthz":      {},
	"/metrics":      {},
	"/openapi.json": {},
	"/v1/ask":       {},
	"/v1/retrieve":  {},
	"/v1/chunks":    {},
}

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	ragRequestsTotal       *prometheus.CounterVec
	ragRetrievalHitTotal   *prometheus.CounterVec
	ragNoContextTotal      *prometheus.CounterVec
	ragRetrievedChunks     *prometheus.HistogramVec
	ragDuration            *prometheus.HistogramVec
	ragCategoryPredictions *prometheus.CounterVec
	gatewayErrorsTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &HTTPServerMetrics{
		registry: registry,

		requestTotal: counter("http", "requests_total",
			"Total HTTP requests processed.", "service", "method", "path", "status"),
		requestDuration: histogram("http", "request_duration_seconds",
			"HTTP request duration in seconds.", prometheus.DefBuckets, "service", "method", "path"),
		requestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		rejectedTotal: counter("http", "rejected_total",
			"Requests rejected by traffic control, by reason.", "service", "reason"),

		ragRequestsTotal: counter("rag", "requests_total",
			"Successful retrieval and answer requests by retrieval mode.", "service", "endpoint", "mode"),
		ragRetrievalHitTotal: counter("rag", "retrieval_hit_total",
			"Requests that retrieved at least one chunk.", "service", "endpoint"),
		ragNoContextTotal: counter("rag", "no_context_total",
			"Requests that retrieved no chunks.", "service", "endpoint"),
		ragRetrievedChunks: histogram("rag", "retrieved_chunks",
			"Retrieved chunks per successful request.", []float64{0, 1, 2, 3, 5, 8, 13, 21}, "service", "endpoint"),
		ragDuration: histogram("rag", "duration_seconds",
			"Retrieval and answer duration in seconds.", prometheus.DefBuckets, "service", "endpoint"),
		ragCategoryPredictions: counter("rag", "category_predictions_total",
			"Predicted question categories; no prediction is reported as none.", "service", "category"),
		gatewayErrorsTotal: counter("rag", "gateway_errors_total",
			"Failed requests by the upstream gateway that caused them.", "service", "gateway"),
	}
}

func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routeLabel(r.URL.Path)
		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRAGObservation(service, endpoint, mode string, chunkCount int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.ragRequestsTotal.WithLabelValues(service, endpoint, mode).Inc()
	m.ragRetrievedChunks.WithLabelValues(service, endpoint).Observe(float64(chunkCount))
	m.ragDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if chunkCount > 0 {
		m.ragRetrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.ragNoContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordCategory(service, category string) {
	if category == "" {
		category = "none"
	}
	m.ragCategoryPredictions.WithLabelValues(service, category).Inc()
}

func (m *HTTPServerMetrics) RecordGatewayError(service, gateway string) {
	m.gatewayErrorsTotal.WithLabelValues(service, gateway).Inc()
}

func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
