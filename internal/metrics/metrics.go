package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "video_downloader"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	jobsSubmitted   *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	queueLength     prometheus.Gauge
	storeFallbacks  *prometheus.CounterVec
	streamsActive   prometheus.Gauge
	streamsFinished *prometheus.CounterVec
	streamBytes     prometheus.Counter
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// HTTP metrics
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),

		// Job metrics
		jobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs handed to an execution backend",
		}, []string{"backend"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state",
		}, []string{"outcome"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of job execution",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "durable_queue_length",
			Help:      "Tasks waiting in the durable queue",
		}),
		storeFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_store_fallbacks_total",
			Help:      "Status store operations served by the in-memory fallback",
		}, []string{"op"}),

		// Stream metrics
		streamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_sessions_active",
			Help:      "Stream sessions currently piping",
		}),
		streamsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_sessions_total",
			Help:      "Stream sessions by final state",
		}, []string{"state"}),
		streamBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Bytes delivered by stream sessions",
		}),
	}
}

var defaultMetrics = New()

// Default returns the process-wide metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	endpoint := normalizeEndpoint(path)
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// JobSubmitted counts a task handed to the named backend.
func (m *Metrics) JobSubmitted(backend string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(backend).Inc()
}

// JobFinished records a job's terminal outcome and duration.
func (m *Metrics) JobFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// SetQueueLength reports the durable queue backlog.
func (m *Metrics) SetQueueLength(length int64) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(length))
}

// StoreFallback counts a status store operation that fell back to memory.
func (m *Metrics) StoreFallback(op string) {
	if m == nil {
		return
	}
	m.storeFallbacks.WithLabelValues(op).Inc()
}

// StreamStarted marks a stream session as piping.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.streamsActive.Inc()
}

// StreamFinished records how a piping session ended.
func (m *Metrics) StreamFinished(state string, bytes int64) {
	if m == nil {
		return
	}
	m.streamsActive.Dec()
	m.streamsFinished.WithLabelValues(state).Inc()
	m.streamBytes.Add(float64(bytes))
}

// normalizeEndpoint collapses ids in paths so label cardinality stays bounded
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = "{id}"
		} else if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			wrapped := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
