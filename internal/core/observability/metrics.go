// Package observability holds the service's prometheus metrics.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "resource", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "resource", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"dataset", "outcome"},
	)

	upstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Retry attempts against the upstream by dataset.",
		},
		[]string{"dataset"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of shared-tier cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "status"},
	)

	coalescedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalesced_requests_total",
			Help: "Requests by coalescing role: leader started the fetch, follower shared it.",
		},
		[]string{"role"},
	)

	responsesByStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "responses_total",
			Help: "Responses by payload status (ok, stale, degraded).",
		},
		[]string{"resource", "payload_status"},
	)

	invalidationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events by result.",
		},
		[]string{"result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, resource string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, resource, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, resource, st).Observe(durationSeconds)
}

func ObserveUpstream(dataset, outcome string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(dataset, outcome).Observe(durationSeconds)
}

func IncUpstreamRetry(dataset string) {
	upstreamRetriesTotal.WithLabelValues(dataset).Inc()
}

func IncCacheHit(tier string)  { cacheResults.WithLabelValues(tier, "hit").Inc() }
func IncCacheMiss(tier string) { cacheResults.WithLabelValues(tier, "miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, status).Observe(durationSeconds)
}

func IncCoalesced(leader bool) {
	role := "follower"
	if leader {
		role = "leader"
	}
	coalescedRequestsTotal.WithLabelValues(role).Inc()
}

func IncResponse(resource, payloadStatus string) {
	responsesByStatus.WithLabelValues(resource, payloadStatus).Inc()
}

func IncInvalidation(result string) {
	invalidationEventsTotal.WithLabelValues(result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
