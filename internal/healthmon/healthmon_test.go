package healthmon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relfin/disburse/internal/notify"
	"github.com/relfin/disburse/internal/rail"
)

type fakeProber struct {
	mu      sync.Mutex
	results []rail.Health
	idx     int
	calls   int
}

// CheckHealth replays canned results, repeating the last one.
func (p *fakeProber) CheckHealth(_ context.Context) rail.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	h := p.results[p.idx]
	if p.idx < len(p.results)-1 {
		p.idx++
	}
	return h
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func up(latency time.Duration) rail.Health {
	return rail.Health{Connected: true, Latency: latency}
}

func down() rail.Health {
	return rail.Health{Connected: false}
}

func TestProbeAll_AllHealthy(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewMonitor(notifier)
	m.Register("payment-rail", &fakeProber{results: []rail.Health{up(40 * time.Millisecond)}})
	m.Register("gateway", &fakeProber{results: []rail.Health{up(90 * time.Millisecond)}})

	snapshot := m.ProbeAll(context.Background())

	if snapshot.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", snapshot.Status)
	}
	if len(snapshot.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoint reports, got %d", len(snapshot.Endpoints))
	}
	if snapshot.Endpoints[0].Service != "payment-rail" {
		t.Fatalf("expected registration order preserved, got %s first", snapshot.Endpoints[0].Service)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no notifications, got %d", notifier.count())
	}
}

func TestProbeAll_SlowEndpointDegrades(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	m.Register("payment-rail", &fakeProber{results: []rail.Health{up(6 * time.Second)}})
	m.Register("gateway", &fakeProber{results: []rail.Health{up(50 * time.Millisecond)}})

	snapshot := m.ProbeAll(context.Background())

	if snapshot.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Status)
	}

	alerts := m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(alerts))
	}
	if alerts[0].Severity != string(notify.SeverityWarning) {
		t.Fatalf("expected warning severity, got %s", alerts[0].Severity)
	}
}

func TestProbeAll_AllDownIsUnhealthy(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewMonitor(notifier)
	m.Register("payment-rail", &fakeProber{results: []rail.Health{down()}})
	m.Register("gateway", &fakeProber{results: []rail.Health{down()}})

	snapshot := m.ProbeAll(context.Background())

	if snapshot.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", snapshot.Status)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 critical notifications, got %d", notifier.count())
	}
}

func TestAlerts_DedupedWhileOpen(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewMonitor(notifier)
	m.Register("payment-rail", &fakeProber{results: []rail.Health{down()}})

	m.ProbeAll(context.Background())
	m.ProbeAll(context.Background())
	m.ProbeAll(context.Background())

	alerts := m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("expected a single deduplicated alert, got %d", len(alerts))
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one notification for a continuing outage, got %d", notifier.count())
	}
}

func TestAlerts_ResolvedOnRecovery(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewMonitor(notifier)
	prober := &fakeProber{results: []rail.Health{down(), up(30 * time.Millisecond)}}
	m.Register("payment-rail", prober)

	m.ProbeAll(context.Background())
	if len(m.Alerts(false)) != 1 {
		t.Fatal("expected an open alert after the outage probe")
	}

	m.ProbeAll(context.Background())
	if len(m.Alerts(false)) != 0 {
		t.Fatal("expected the alert resolved after recovery")
	}

	all := m.Alerts(true)
	if len(all) != 1 || !all[0].Resolved || all[0].ResolvedAt == nil {
		t.Fatalf("expected resolved alert retained in history, got %+v", all)
	}

	// A fresh outage after recovery opens a new alert.
	prober.mu.Lock()
	prober.results = []rail.Health{down()}
	prober.idx = 0
	prober.mu.Unlock()

	m.ProbeAll(context.Background())
	if len(m.Alerts(false)) != 1 {
		t.Fatal("expected a new alert for the second outage")
	}
	if notifier.count() != 2 {
		t.Fatalf("expected a second notification, got %d", notifier.count())
	}
}

func TestHistory_Bounded(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	m.Register("payment-rail", &fakeProber{results: []rail.Health{up(10 * time.Millisecond)}})

	for i := 0; i < historyCap+50; i++ {
		m.ProbeAll(context.Background())
	}

	m.mu.Lock()
	size := len(m.history)
	m.mu.Unlock()
	if size != historyCap {
		t.Fatalf("expected history capped at %d, got %d", historyCap, size)
	}
}

func TestStats_ComputesUptimeAndLatency(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	m.Register("payment-rail", &fakeProber{results: []rail.Health{
		up(100 * time.Millisecond),
		down(),
		up(300 * time.Millisecond),
		up(200 * time.Millisecond),
	}})

	for i := 0; i < 4; i++ {
		m.ProbeAll(context.Background())
	}

	stats := m.Stats(time.Hour)
	if len(stats) != 1 {
		t.Fatalf("expected stats for 1 service, got %d", len(stats))
	}

	s := stats[0]
	if s.Probes != 4 {
		t.Fatalf("expected 4 probes, got %d", s.Probes)
	}
	if s.UptimePct != 75 {
		t.Fatalf("expected 75%% uptime, got %v", s.UptimePct)
	}
	if s.ErrorRate != 0.25 {
		t.Fatalf("expected 0.25 error rate, got %v", s.ErrorRate)
	}
	if s.AvgLatency != 200*time.Millisecond {
		t.Fatalf("expected 200ms average latency, got %v", s.AvgLatency)
	}
}

func TestStats_UnprobedServiceReportsZero(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	m.Register("payment-rail", &fakeProber{results: []rail.Health{up(time.Millisecond)}})
	m.Register("gateway", &fakeProber{results: []rail.Health{up(time.Millisecond)}})

	stats := m.Stats(time.Hour)
	if len(stats) != 2 {
		t.Fatalf("expected stats for both registered services, got %d", len(stats))
	}
	for _, s := range stats {
		if s.Probes != 0 {
			t.Fatalf("expected zero probes before any sweep, got %d for %s", s.Probes, s.Service)
		}
	}
}

func TestPurge_DropsOldResolvedAlerts(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	prober := &fakeProber{results: []rail.Health{down(), up(time.Millisecond)}}
	m.Register("payment-rail", prober)

	m.ProbeAll(context.Background())
	m.ProbeAll(context.Background())

	if purged := m.Purge(time.Now()); purged != 0 {
		t.Fatalf("expected a fresh resolved alert to survive, purged %d", purged)
	}

	if purged := m.Purge(time.Now().Add(8 * 24 * time.Hour)); purged != 1 {
		t.Fatalf("expected the resolved alert purged after retention, purged %d", purged)
	}
	if len(m.Alerts(true)) != 0 {
		t.Fatal("expected no alerts after purge")
	}
}

func TestLatest_ServesLastReportsWithoutProbing(t *testing.T) {
	m := NewMonitor(&captureNotifier{})
	prober := &fakeProber{results: []rail.Health{up(25 * time.Millisecond)}}
	m.Register("payment-rail", prober)

	if snap := m.Latest(); snap.Status != StatusUnhealthy || len(snap.Endpoints) != 0 {
		t.Fatalf("expected empty unhealthy snapshot before probes, got %+v", snap)
	}

	m.ProbeAll(context.Background())

	prober.mu.Lock()
	callsAfterProbe := prober.calls
	prober.mu.Unlock()

	snap := m.Latest()
	if snap.Status != StatusHealthy {
		t.Fatalf("expected healthy from last report, got %s", snap.Status)
	}
	if len(snap.Endpoints) != 1 || snap.Endpoints[0].Latency != 25*time.Millisecond {
		t.Fatalf("unexpected endpoint report: %+v", snap.Endpoints)
	}

	prober.mu.Lock()
	if prober.calls != callsAfterProbe {
		prober.mu.Unlock()
		t.Fatal("Latest must not probe the endpoint")
	}
	prober.mu.Unlock()
}

func TestReport_Slow(t *testing.T) {
	if (Report{Connected: true, Latency: 6 * time.Second}).Slow() != true {
		t.Fatal("expected 6s to be slow")
	}
	if (Report{Connected: true, Latency: 4 * time.Second}).Slow() {
		t.Fatal("expected 4s not to be slow")
	}
	if (Report{Connected: false, Latency: 10 * time.Second}).Slow() {
		t.Fatal("disconnected reports are not slow")
	}
}
