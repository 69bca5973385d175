package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to the GIMS REST API.
	GIMSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gims_api_requests_total",
			Help: "Total number of GIMS API requests made (by method and status).",
		},
		[]string{"method", "status"},
	)

	// Measures duration of API requests to GIMS.
	GIMSRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gims_api_request_duration_seconds",
			Help:    "Duration of GIMS API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"method"},
	)

	// Counts access-token refresh attempts.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gims_token_refresh_total",
			Help: "Access token refresh attempts by result.",
		},
		[]string{"result"}, // ok | expired | error
	)

	// Counts log stream sessions by terminal state.
	LogStreamSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gims_logstream_sessions_total",
			Help: "Script execution log sessions by terminal state.",
		},
		[]string{"terminated_by"}, // marker | timeout | error
	)

	// Counts tool responses rejected by the size limiter.
	ResponseTooLarge = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gims_response_too_large_total",
			Help: "Tool responses rejected for exceeding the configured size limit.",
		},
		[]string{"tool"},
	)

	// Tracks NATS messages processed by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks cache hits and misses for secrets and reference tables.
	CacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gims_cache_access_total",
			Help: "Number of cache hits/misses by cache name.",
		},
		[]string{"cache", "result"}, // hit | miss
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncGIMSRequest(method, status string) {
	GIMSRequestsTotal.WithLabelValues(method, status).Inc()
}

func IncTokenRefresh(result string) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
}

func IncLogStreamSession(terminatedBy string) {
	LogStreamSessions.WithLabelValues(terminatedBy).Inc()
}

func IncResponseTooLarge(tool string) {
	ResponseTooLarge.WithLabelValues(tool).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheAccess(cache, result string) {
	CacheAccess.WithLabelValues(cache, result).Inc()
}
