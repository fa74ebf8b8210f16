// Package metrics exposes Prometheus metrics for the gateway.
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

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ncgw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ncgw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight tracks requests currently being processed.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ncgw",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// ActionsTotal counts dispatched gateway actions by action and outcome.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ncgw",
			Subsystem: "gateway",
			Name:      "actions_total",
			Help:      "Total number of dispatched gateway actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// ActionDuration measures gateway action duration in seconds.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ncgw",
			Subsystem: "gateway",
			Name:      "action_duration_seconds",
			Help:      "Gateway action duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"action"},
	)

	// MailExportUploads counts files uploaded by the mail export pipeline.
	MailExportUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ncgw",
			Subsystem: "gateway",
			Name:      "mail_export_uploads_total",
			Help:      "Total number of files uploaded by mail export, by kind",
		},
		[]string{"kind"}, // mail, attachment
	)
)

var (
	// OutboundRequestsTotal counts outbound requests to remote storage
	// and sharing APIs by kind and result.
	OutboundRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ncgw",
			Subsystem: "outbound",
			Name:      "requests_total",
			Help:      "Total number of outbound requests by kind and result",
		},
		[]string{"kind", "result"},
	)

	// TokenRefreshesTotal counts access token refresh attempts by result.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ncgw",
			Subsystem: "token",
			Name:      "refreshes_total",
			Help:      "Total number of access token refresh attempts by result",
		},
		[]string{"result"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records HTTP request metrics. It labels by the chi route
// pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// ObserveOutbound records one outbound request attempt against a remote
// API. kind names the remote surface (dav, ocs, relay).
func ObserveOutbound(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OutboundRequestsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveAction records one dispatched action.
func ObserveAction(action, outcome string, elapsed time.Duration) {
	ActionsTotal.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
