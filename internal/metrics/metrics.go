// Package metrics exposes Prometheus collectors for the lead generation service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes.
const (
	LookupFound     = "found"
	LookupNoResults = "no_results"
	LookupSkipped   = "skipped"
	LookupFailed    = "failed"
	LookupTransient = "transient"
)

// Write outcomes.
const (
	WriteOK     = "ok"
	WriteFailed = "failed"
)

var (
	searchesTotal      *prometheus.CounterVec
	enrichLookupsTotal *prometheus.CounterVec
	persistWritesTotal *prometheus.CounterVec
	searchDuration     prometheus.Histogram

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_searches_total",
				Help: "Business searches executed, labeled by status.",
			},
			[]string{"status"},
		)

		enrichLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_enrich_lookups_total",
				Help: "Email lookups per business, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		persistWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_persist_writes_total",
				Help: "Business writes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadgen_search_duration_seconds",
				Help:    "Duration of search+enrich executions.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadgen_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// RecordSearch counts one search execution.
func RecordSearch(status string, seconds float64) {
	Init()
	searchesTotal.WithLabelValues(status).Inc()
	searchDuration.Observe(seconds)
}

// RecordLookup counts one email lookup outcome.
func RecordLookup(outcome string) {
	Init()
	enrichLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordWrite counts one business write outcome.
func RecordWrite(outcome string) {
	Init()
	persistWritesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest counts one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latencies by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ObserveHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
