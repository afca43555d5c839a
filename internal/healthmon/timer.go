package healthmon

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer probes all registered endpoints on a fixed interval and purges
// stale resolved alerts as it goes.
type Timer struct {
	monitor  *Monitor
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a probe timer.
func NewTimer(monitor *Monitor, interval time.Duration, logger *slog.Logger) *Timer {
	if interval == 0 {
		interval = 3 * time.Minute
	}
	return &Timer{
		monitor:  monitor,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the probe loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeProbe(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeProbe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in health probe", "panic", fmt.Sprint(r))
		}
	}()

	snapshot := t.monitor.ProbeAll(ctx)
	if snapshot.Status != StatusHealthy {
		t.logger.Warn("integration health check", "status", snapshot.Status)
	}

	if purged := t.monitor.Purge(time.Now()); purged > 0 {
		t.logger.Info("purged resolved health alerts", "count", purged)
	}
}
