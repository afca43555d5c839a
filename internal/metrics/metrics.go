// Package metrics provides Prometheus instrumentation for the disbursement engine.
package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "disburse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// QueueAdmissionsTotal counts queue entries admitted by priority tier.
	QueueAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "queue_admissions_total",
			Help:      "Total queue entries admitted by priority tier.",
		},
		[]string{"priority"},
	)

	// PaymentsSubmittedTotal counts rail submissions by endpoint and result.
	PaymentsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "payments_submitted_total",
			Help:      "Total payment rail submissions by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// PaymentAttemptDuration observes rail submission latency by endpoint.
	PaymentAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "disburse",
			Name:      "payment_attempt_duration_seconds",
			Help:      "Payment rail submission latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	// RetriesScheduledTotal counts retry schedules written by the coordinator.
	RetriesScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "disburse",
		Name:      "retries_scheduled_total",
		Help:      "Total payment retries scheduled.",
	})

	// ReconciliationMatchesTotal counts matching outcomes.
	ReconciliationMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "reconciliation_matches_total",
			Help:      "Total reconciliation matching outcomes by status.",
		},
		[]string{"status"},
	)

	// ReconciliationImportsTotal counts imported settlement rows by result.
	ReconciliationImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "reconciliation_imports_total",
			Help:      "Total settlement file rows by import result.",
		},
		[]string{"result"},
	)

	// DuplicateFlagsTotal counts duplicate flags raised by risk level.
	DuplicateFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "duplicate_flags_total",
			Help:      "Total duplicate beneficiary flags raised by risk level.",
		},
		[]string{"risk"},
	)

	// HealthProbeLatency observes external endpoint probe latency.
	HealthProbeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "disburse",
			Name:      "health_probe_latency_seconds",
			Help:      "External payment endpoint probe latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service"},
	)

	// HealthAlertsActive tracks currently unresolved health alerts.
	HealthAlertsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disburse",
		Name:      "health_alerts_active",
		Help:      "Number of unresolved integration health alerts.",
	})

	// NotificationsTotal counts notification sink deliveries by result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "notifications_total",
			Help:      "Total notification deliveries by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disburse", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disburse", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disburse", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "disburse", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QueueAdmissionsTotal,
		PaymentsSubmittedTotal,
		PaymentAttemptDuration,
		RetriesScheduledTotal,
		ReconciliationMatchesTotal,
		ReconciliationImportsTotal,
		DuplicateFlagsTotal,
		HealthProbeLatency,
		HealthAlertsActive,
		NotificationsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
