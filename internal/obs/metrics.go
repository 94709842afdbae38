package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	eventsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_recorded_total",
			Help: "Audit events appended, by event type.",
		},
		[]string{"type"},
	)

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than
// once (tests construct the API repeatedly).
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, eventsRecorded)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent counts a recorded inventory event. Callers invoke it
// after the event's transaction committed.
func ObserveEvent(eventType string) {
	eventsRecorded.WithLabelValues(eventType).Inc()
}

// EventsRecordedTotal reads the current count for one event type.
func EventsRecordedTotal(eventType string) float64 {
	var m dto.Metric
	if err := eventsRecorded.WithLabelValues(eventType).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
// routePattern yields a low-cardinality path label (chi route pattern).
func Instrument(next http.Handler, routePattern func(r *http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := r.URL.Path
		if routePattern != nil {
			if p := routePattern(r); p != "" {
				path = p
			}
		}

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
