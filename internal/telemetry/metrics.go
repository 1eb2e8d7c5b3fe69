// Package telemetry provides application-level observability for the hub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<HUB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds.  It is
// NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authorization decision counters, by outcome and deny reason
//   - Quota rejection counters by operation, plus throttle rejections
//   - Atomic store error counters by component
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/apikeys/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
//
// # Usage
//
//	telemetry.AuthDecisions.WithLabelValues("deny", "SUSPENDED_ACCOUNT").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization metrics.
//
// AuthDecisions is a CounterVec with labels {outcome, reason}. Outcome is
// allow, deny, unauthorized, or error (store outage); reason is the deny
// reason code and empty otherwise.
//
// Example PromQL queries:
//   - Deny rate by reason:   sum by (reason) (rate(auth_decisions_total{outcome="deny"}[5m]))
//   - Outage alert:          increase(auth_decisions_total{outcome="error"}[5m]) > 0
var AuthDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_decisions_total",
		Help: "Total number of authorization decisions, by outcome and deny reason.",
	},
	[]string{"outcome", "reason"},
)

// Quota and throttle metrics.
//
// QuotaRejections counts operations rejected by the fixed-window quota, by
// operation name. ThrottleRejections counts requests rejected by the
// transport-level throttle before auth ran.
//
// Example PromQL queries:
//   - Rejections by operation:  sum by (operation) (rate(quota_rejections_total[1h]))
var (
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Total number of operations rejected by a quota, by operation.",
		},
		[]string{"operation"},
	)

	ThrottleRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "throttle_rejections_total",
			Help: "Total number of requests rejected by the request throttle.",
		},
	)
)

// StoreErrors counts atomic store failures by the component that observed
// them. A non-zero rate here while auth_decisions_total{outcome="error"}
// stays flat means only fail-open components were affected.
//
// Example PromQL query:
//   - increase(store_errors_total[5m]) > 0
var StoreErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Total number of atomic store failures, by component.",
	},
	[]string{"component"},
)

// InviteRedemptions counts redemption attempts by result: redeemed,
// idempotent (repeat by the same subject), or a rejection class.
var InviteRedemptions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invite_redemptions_total",
		Help: "Total number of invite redemption attempts, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections
// currently held by the audit database's sql.DB pool.  It is sampled every
// 30 seconds by StartDBStatsCollector rather than per-request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <HUB_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits cleanly when the database
// becomes unreachable (db.Ping fails), which happens automatically when the
// application shuts down and defers db.Close().
//
// Call this once, immediately after the audit database connects in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
