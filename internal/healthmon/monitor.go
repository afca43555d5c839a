package healthmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/notify"
)

// Monitor owns probe history and alerting for the external endpoints.
type Monitor struct {
	mu       sync.Mutex
	names    []string
	probers  map[string]Prober
	history  []Report
	alerts   []*Alert
	notifier notify.Notifier
}

// NewMonitor creates a health monitor over named endpoints.
func NewMonitor(notifier notify.Notifier) *Monitor {
	return &Monitor{
		probers:  make(map[string]Prober),
		notifier: notifier,
	}
}

// Register adds a named endpoint to the probe set.
func (m *Monitor) Register(name string, p Prober) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.probers[name]; !ok {
		m.names = append(m.names, name)
	}
	m.probers[name] = p
}

// ProbeAll checks every registered endpoint once and returns the snapshot.
func (m *Monitor) ProbeAll(ctx context.Context) *Snapshot {
	m.mu.Lock()
	names := append([]string(nil), m.names...)
	probers := make(map[string]Prober, len(m.probers))
	for k, v := range m.probers {
		probers[k] = v
	}
	m.mu.Unlock()

	now := time.Now()
	snapshot := &Snapshot{CheckedAt: now}

	for _, name := range names {
		h := probers[name].CheckHealth(ctx)
		report := Report{
			Service:   name,
			Connected: h.Connected,
			Latency:   h.Latency,
			CheckedAt: now,
		}
		snapshot.Endpoints = append(snapshot.Endpoints, report)
		metrics.HealthProbeLatency.WithLabelValues(name).Observe(h.Latency.Seconds())

		m.record(ctx, report)
	}

	snapshot.Status = overall(snapshot.Endpoints)
	return snapshot
}

// record appends to the ring buffer and maintains alerts for one report.
func (m *Monitor) record(ctx context.Context, r Report) {
	m.mu.Lock()
	m.history = append(m.history, r)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()

	switch {
	case !r.Connected:
		m.raise(ctx, r.Service, notify.SeverityCritical,
			fmt.Sprintf("%s is not reachable", r.Service))
	case r.Slow():
		m.raise(ctx, r.Service, notify.SeverityWarning,
			fmt.Sprintf("%s responded in %s", r.Service, r.Latency.Round(time.Millisecond)))
	default:
		m.resolve(r.Service)
	}
}

// raise opens an alert unless the same (service, message) is already open.
// Critical alerts notify immediately.
func (m *Monitor) raise(ctx context.Context, service string, severity notify.Severity, message string) {
	m.mu.Lock()
	for _, a := range m.alerts {
		if !a.Resolved && a.Service == service && a.Message == message {
			m.mu.Unlock()
			return
		}
	}
	alert := &Alert{
		ID:        idgen.WithPrefix("alrt_"),
		Service:   service,
		Severity:  string(severity),
		Message:   message,
		CreatedAt: time.Now(),
	}
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	metrics.HealthAlertsActive.Inc()
	logging.L(ctx).Warn("health alert raised",
		"service", service, "severity", severity, "message", message)

	if severity == notify.SeverityCritical {
		err := m.notifier.Notify(ctx, notify.Message{
			Severity:  severity,
			Service:   service,
			Title:     "Payment endpoint down",
			Body:      message,
			Timestamp: alert.CreatedAt,
		})
		if err != nil {
			logging.L(ctx).Error("failed to deliver health notification",
				"service", service, "error", err)
		}
	}
}

// resolve closes all open alerts for a now-healthy service.
func (m *Monitor) resolve(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, a := range m.alerts {
		if !a.Resolved && a.Service == service {
			a.Resolved = true
			a.ResolvedAt = &now
			metrics.HealthAlertsActive.Dec()
		}
	}
}

// Latest returns a snapshot built from the most recent report per
// endpoint, without probing.
func (m *Monitor) Latest() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]Report)
	for _, r := range m.history {
		latest[r.Service] = r
	}

	snapshot := &Snapshot{CheckedAt: time.Now()}
	for _, name := range m.names {
		if r, ok := latest[name]; ok {
			snapshot.Endpoints = append(snapshot.Endpoints, r)
		}
	}
	snapshot.Status = overall(snapshot.Endpoints)
	return snapshot
}

// Alerts returns alerts, optionally including resolved ones.
func (m *Monitor) Alerts(includeResolved bool) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Alert
	for _, a := range m.alerts {
		if !includeResolved && a.Resolved {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Purge drops resolved alerts older than the retention window.
func (m *Monitor) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-alertRetention)
	kept := m.alerts[:0]
	purged := 0
	for _, a := range m.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return purged
}

// Stats computes per-service uptime, average latency, and error rate over
// the lookback window. Windows beyond 168 hours are clamped.
func (m *Monitor) Stats(window time.Duration) []ServiceStats {
	if window <= 0 || window > maxStatsWindow {
		window = maxStatsWindow
	}
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	type agg struct {
		probes    int
		connected int
		latency   time.Duration
	}
	byService := make(map[string]*agg)
	for _, r := range m.history {
		if r.CheckedAt.Before(cutoff) {
			continue
		}
		a, ok := byService[r.Service]
		if !ok {
			a = &agg{}
			byService[r.Service] = a
		}
		a.probes++
		if r.Connected {
			a.connected++
			a.latency += r.Latency
		}
	}

	var out []ServiceStats
	for _, name := range m.names {
		a, ok := byService[name]
		if !ok || a.probes == 0 {
			out = append(out, ServiceStats{Service: name})
			continue
		}
		stats := ServiceStats{
			Service:   name,
			Probes:    a.probes,
			UptimePct: 100 * float64(a.connected) / float64(a.probes),
			ErrorRate: float64(a.probes-a.connected) / float64(a.probes),
		}
		if a.connected > 0 {
			stats.AvgLatency = a.latency / time.Duration(a.connected)
		}
		out = append(out, stats)
	}
	return out
}

// overall derives the aggregate status from the latest reports.
func overall(reports []Report) OverallStatus {
	if len(reports) == 0 {
		return StatusUnhealthy
	}

	connected, slow := 0, 0
	for _, r := range reports {
		if r.Connected {
			connected++
			if r.Slow() {
				slow++
			}
		}
	}

	switch {
	case connected == 0:
		return StatusUnhealthy
	case connected < len(reports) || slow > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
