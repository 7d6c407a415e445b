package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// Resolution Metrics
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_resolutions_total",
			Help: "Visit resolutions by outcome",
		},
		[]string{"outcome"},
	)

	BlockedVisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_blocked_visits_total",
			Help: "Blocked visits by reason",
		},
		[]string{"reason"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_rate_limited_total",
			Help: "Resolution requests rejected by the per-IP window",
		},
	)

	QuotaExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_quota_exceeded_total",
			Help: "Redirects refused because the subscription ceiling was crossed",
		},
	)

	VisitLogFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_visit_log_failures_total",
			Help: "Visit records that could not be persisted",
		},
	)

	// IP intelligence
	ProviderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipintel_provider_failures_total",
			Help: "Failed or timed out IP intelligence lookups",
		},
		[]string{"provider"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipintel_provider_duration_seconds",
			Help:    "IP intelligence lookup latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Jobs
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job executions",
		},
		[]string{"job", "status"},
	)
)

// RecordHTTPMetrics records metrics for an HTTP request
func RecordHTTPMetrics(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
