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

// Authentication metrics. Labels carry the principal kind so per-audience
// dashboards do not need relabeling.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by principal kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	lockoutsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_lockouts_triggered_total",
			Help: "Account lockouts triggered by principal kind.",
		},
		[]string{"kind"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limit_rejections_total",
			Help: "Authentication requests rejected by the rate limiter.",
		},
		[]string{"kind"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, lockoutsTriggered, rateLimitRejections, tokenRefreshes,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome ("success", "failure",
// "locked", "inactive", "rate_limited").
func ObserveLogin(kind, outcome string) {
	loginAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveLockout records a triggered account lockout.
func ObserveLockout(kind string) {
	lockoutsTriggered.WithLabelValues(kind).Inc()
}

// ObserveRateLimited records a rate-limiter rejection.
func ObserveRateLimited(kind string) {
	rateLimitRejections.WithLabelValues(kind).Inc()
}

// ObserveRefresh records a refresh rotation outcome ("success", "failure").
func ObserveRefresh(outcome string) {
	tokenRefreshes.WithLabelValues(outcome).Inc()
}

// Instrument wraps an http.Handler with RPS/latency/in-flight measurement.
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

// CanonicalPath collapses identifier segments so metric cardinality stays
// bounded. Login routes keep their principal-kind segment; everything below
// known collection roots is folded into ":id".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	for _, root := range []string{"/v1/organizations/", "/v1/users/", "/v1/drivers/"} {
		if rest, ok := strings.CutPrefix(path, root); ok {
			if j := strings.IndexByte(rest, '/'); j >= 0 {
				return root + ":id" + rest[j:]
			}
			return root + ":id"
		}
	}
	return path
}

// statusWriter is a local copy so the wrapper can record the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
