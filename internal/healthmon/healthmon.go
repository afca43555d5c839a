// Package healthmon probes the external payment endpoints and keeps a
// bounded in-memory history of their connectivity and latency.
//
// All state is process-local: a multi-instance deployment sees independent
// histories and alert lists.
package healthmon

import (
	"context"
	"time"

	"github.com/relfin/disburse/internal/rail"
)

// OverallStatus aggregates all probed endpoints.
type OverallStatus string

const (
	StatusHealthy   OverallStatus = "healthy"
	StatusDegraded  OverallStatus = "degraded"
	StatusUnhealthy OverallStatus = "unhealthy"
)

const (
	// slowThreshold is the response time past which a connected endpoint
	// counts as degraded.
	slowThreshold = 5 * time.Second

	// historyCap bounds the probe history ring buffer.
	historyCap = 1000

	// maxStatsWindow caps a stats lookback request.
	maxStatsWindow = 168 * time.Hour

	// alertRetention is how long resolved alerts are kept before a sweep
	// purges them.
	alertRetention = 7 * 24 * time.Hour
)

// Prober checks one external endpoint.
type Prober interface {
	CheckHealth(ctx context.Context) rail.Health
}

// Report is one probe result.
type Report struct {
	Service   string        `json:"service"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Slow reports whether the endpoint responded but took too long.
func (r Report) Slow() bool {
	return r.Connected && r.Latency > slowThreshold
}

// Alert is a raised health problem, deduplicated by (service, message)
// while unresolved.
type Alert struct {
	ID         string     `json:"id"`
	Service    string     `json:"service"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"createdAt"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// ServiceStats is the per-endpoint rollup over a lookback window.
type ServiceStats struct {
	Service    string        `json:"service"`
	Probes     int           `json:"probes"`
	UptimePct  float64       `json:"uptimePct"`
	AvgLatency time.Duration `json:"avgLatency"`
	ErrorRate  float64       `json:"errorRate"`
}

// Snapshot is the current health view across endpoints.
type Snapshot struct {
	Status    OverallStatus `json:"status"`
	Endpoints []Report      `json:"endpoints"`
	CheckedAt time.Time     `json:"checkedAt"`
}
