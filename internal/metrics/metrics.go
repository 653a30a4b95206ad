package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kixikila_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Draws = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_draws_total",
			Help: "Group draws by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_webhook_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	OTP = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_otp_total",
			Help: "OTP issue and verify operations",
		},
		[]string{"op", "outcome"},
	)

	Withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_withdrawals_total",
			Help: "Withdrawal state changes",
		},
		[]string{"status"},
	)

	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kixikila_tx_retries_total",
			Help: "Serializable transactions retried after a conflict",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kixikila_circuit_breaker_state",
			Help: "0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kixikila_websocket_connections",
			Help: "Open notification sockets",
		},
	)

	WebsocketDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_websocket_dropped_total",
			Help: "Frames dropped because a client was too slow",
		},
		[]string{"type"},
	)

	PaymentsAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_payments_abandoned_total",
			Help: "Pending card payments cancelled before the processor settled them",
		},
		[]string{"type"},
	)

	CleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kixikila_cleanup_removed_total",
			Help: "Rows removed or expired by the cleanup job",
		},
		[]string{"kind"},
	)
)

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
