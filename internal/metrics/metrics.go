// Package metrics provides Prometheus instrumentation for eplustv.
//
// All collectors register on the default registry at init time and are
// exposed by Handler at GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActiveSessions is the number of tuner sessions held by the registry.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "eplustv_tuner_sessions_active",
	Help: "Number of live tuner sessions.",
})

// SessionLaunches counts session launches by result (ok, not_scheduled, error).
var SessionLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_tuner_launches_total",
	Help: "Tuner session launches by result.",
}, []string{"result"})

// SessionsReaped counts sessions removed by the idle reaper.
var SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "eplustv_tuner_sessions_reaped_total",
	Help: "Tuner sessions removed for inactivity.",
})

// SegmentBytes counts bytes relayed for segments and keys.
var SegmentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_segment_bytes_total",
	Help: "Bytes relayed to clients by resource kind.",
}, []string{"kind"})

// IngestEntries counts entries inserted by ingestion per provider.
var IngestEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_ingest_entries_total",
	Help: "Catalog entries inserted by provider.",
}, []string{"provider"})

// IngestFailures counts failed provider schedule fetches.
var IngestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_ingest_failures_total",
	Help: "Failed schedule fetches by provider.",
}, []string{"provider"})

// ScheduledEntries counts entries placed on a channel by kind (dynamic, linear).
var ScheduledEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_schedule_assigned_total",
	Help: "Entries assigned to channels.",
}, []string{"kind"})

// AllocationDrops counts entries dropped because the channel pool was full.
var AllocationDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "eplustv_schedule_dropped_total",
	Help: "Entries dropped for lack of a free channel.",
})

// CredentialRefreshes counts provider credential refreshes by provider and result.
var CredentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_provider_refreshes_total",
	Help: "Provider credential refresh attempts.",
}, []string{"provider", "result"})

// HTTPRequests counts HTTP requests by method, route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eplustv_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "eplustv_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. Routes are labelled with
// the chi route pattern so channel numbers and tokens do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := routePattern(r)
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
