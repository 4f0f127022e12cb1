package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
)

// Authentication domain metrics.
var (
	loginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodsync_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bloodsync_account_lockouts_total",
		Help: "Accounts transitioned to the locked state.",
	})

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodsync_token_refresh_total",
			Help: "Refresh token exchanges by outcome.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttemptsTotal, lockoutsTotal, tokenRefreshTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome
// (success, invalid_credentials, locked, inactive, error).
func ObserveLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveLockout records an account transitioning to Locked.
func ObserveLockout() {
	lockoutsTotal.Inc()
}

// ObserveRefresh records a refresh exchange outcome (success, invalid, expired, error).
func ObserveRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// Routes the service actually serves. Anything else collapses to a single
// label so scanners probing random paths cannot blow up metric cardinality.
var knownPaths = map[string]struct{}{
	"/":                 {},
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
	"/v1/auth/login":    {},
	"/v1/auth/register": {},
	"/v1/auth/refresh":  {},
	"/v1/auth/unlock":   {},
	"/v1/auth/password": {},
}

// CanonicalPath maps a request path to a bounded metric label.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "/unmatched"
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
