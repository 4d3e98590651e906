// Package telemetry provides the observability plumbing of the MRO API: Prometheus metrics and
// the process-wide slog logger.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<MRO_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit log writes and write failures
//   - Rate limiter rejections
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cirrus-mro/cirrus-api/internal/safego"
)

// HTTP metrics. The path label holds the Gin route template (e.g. /api/v1/work-orders/:id),
// never the raw URL.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Audit metrics, incremented by the audit recorder inside the write transaction. A write that
// is counted here can still be rolled back with its business change.
//
// Example PromQL queries:
//   - Audited writes by type:  sum by (entity_type, action) (rate(audit_records_written_total[5m]))
//   - Alert expression:        increase(audit_write_failures_total[10m]) > 0
var (
	AuditRecordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_written_total",
			Help: "Total number of audit records inserted, by entity type and action.",
		},
		[]string{"entity_type", "action"},
	)

	AuditWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit record inserts that failed, by entity type.",
		},
		[]string{"entity_type"},
	)
)

// RateLimitRejectionsTotal counts requests answered with 429, by limiter backend
// ("memory" or "redis").
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool. It is
// sampled by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// DBStatsInterval is how often StartDBStatsCollector samples the pool
const DBStatsInterval = 30 * time.Second

// StartDBStatsCollector samples the connection pool every interval until ctx is cancelled or
// the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	})
}
