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

// Auth-specific counters.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careportal_login_attempts_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	tokenVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careportal_token_verifications_total",
			Help: "Access token verifications by result.",
		},
		[]string{"result"},
	)

	refreshRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careportal_refresh_rotations_total",
			Help: "Refresh token rotations by result.",
		},
		[]string{"result"},
	)

	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careportal_access_decisions_total",
			Help: "Access policy decisions by outcome and deny reason.",
		},
		[]string{"decision", "reason"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, tokenVerifications, refreshRotations, accessDecisions,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome ("success", "failure").
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveTokenVerification records an access token verification outcome.
func ObserveTokenVerification(result string) {
	tokenVerifications.WithLabelValues(result).Inc()
}

// ObserveRefreshRotation records a refresh rotation outcome
// ("success", "not_found", "replay").
func ObserveRefreshRotation(result string) {
	refreshRotations.WithLabelValues(result).Inc()
}

// ObserveAccessDecision records a policy decision; reason is empty on allow.
func ObserveAccessDecision(allowed bool, reason string) {
	decision := "deny"
	if allowed {
		decision = "allow"
		reason = ""
	}
	accessDecisions.WithLabelValues(decision, reason).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
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

// resourceCollections are the /v1 collections whose second segment is a
// per-resource identifier.
var resourceCollections = map[string]struct{}{
	"cases":    {},
	"clients":  {},
	"reports":  {},
	"files":    {},
	"listings": {},
}

// canonicalSubresources are the known third segments under a resource id.
var canonicalSubresources = map[string]struct{}{
	"members": {},
	"share":   {},
}

// CanonicalPath collapses per-resource identifiers so metric cardinality stays
// bounded: /v1/cases/01ABC -> /v1/cases/:id.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 3 && segments[0] == "v1" {
		if _, ok := resourceCollections[segments[1]]; ok {
			switch len(segments) {
			case 3:
				return "/v1/" + segments[1] + "/:id"
			case 4:
				if _, ok := canonicalSubresources[segments[3]]; ok {
					return "/v1/" + segments[1] + "/:id/" + segments[3]
				}
			}
		}
	}
	return path
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
