package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "streak_chat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "route"},
	)

	turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	completionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "streak_chat",
			Subsystem: "chat",
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion service calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	tokensUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "chat",
			Name:      "tokens_used_total",
			Help:      "Tokens reported by the completion service.",
		},
	)

	persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "store",
			Name:      "persistence_failures_total",
			Help:      "Best-effort writes that failed and were dropped.",
		},
		[]string{"kind"},
	)

	accruals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "rewards",
			Name:      "accruals_total",
			Help:      "Reward accruals by result.",
		},
		[]string{"result"},
	)

	pointsDelta = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streak_chat",
			Subsystem: "rewards",
			Name:      "points_total",
			Help:      "Absolute points moved by the ledger, by category.",
		},
		[]string{"category"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		turns,
		completionDuration,
		tokensUsed,
		persistenceFailures,
		accruals,
		pointsDelta,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTurn counts a turn; outcome is e.g. "ok", "flagged", "upstream_error".
func RecordTurn(outcome string) {
	turns.WithLabelValues(outcome).Inc()
}

func RecordCompletion(d time.Duration, tokens int) {
	completionDuration.Observe(d.Seconds())
	if tokens > 0 {
		tokensUsed.Add(float64(tokens))
	}
}

func RecordPersistenceFailure(kind string) {
	persistenceFailures.WithLabelValues(kind).Inc()
}

// RecordAccrual counts an accrual result and the points it moved.
func RecordAccrual(result, category string, points int) {
	accruals.WithLabelValues(result).Inc()
	if points == 0 || category == "" {
		return
	}
	if points < 0 {
		points = -points
	}
	pointsDelta.WithLabelValues(category).Add(float64(points))
}
