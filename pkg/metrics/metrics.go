package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Security-core metrics. Cardinality is bounded: actions and outcomes are
// closed sets, never raw user input.
var (
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit check outcomes by action and scope.",
		},
		[]string{"scope", "action", "outcome"},
	)

	RateLimitFailOpen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_fail_open_total",
			Help: "Checks allowed because the counter store was unreachable.",
		},
		[]string{"scope", "action"},
	)

	AccessDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_denials_total",
			Help: "Cross-boundary access denials by reason class.",
		},
		[]string{"reason"},
	)

	SecurityAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "security_alerts_total",
			Help: "Escalation alerts raised for repeated denials.",
		},
	)

	ForensicWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forensic_write_failures_total",
			Help: "Swallowed event-store write failures by writer.",
		},
		[]string{"writer"},
	)

	AnalyzerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pattern_analyzer_duration_seconds",
			Help:    "Wall time of access pattern analysis runs.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// HTTP metrics for the gin surface.
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

// Init registers all metrics with the default registry. Call once from main.
func Init() {
	prometheus.MustRegister(
		RateLimitDecisions,
		RateLimitFailOpen,
		AccessDenials,
		SecurityAlerts,
		ForensicWriteFailures,
		AnalyzerDuration,
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures RPS, latency, and in-flight count per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use the route template, not the raw path, to bound cardinality.
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpInFlight.Dec()
	}
}

// Outcome labels for RateLimitDecisions.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// Scope labels for rate-limit metrics.
const (
	ScopeSubject = "subject"
	ScopeIP      = "ip"
)
