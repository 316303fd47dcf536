package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

const (
	rollbackPollInterval = 30 * time.Second
	rollbackSpikeWindow  = 60 * time.Second
)

// RollbackFunc performs the actual rollback; supplied by the deploy caller.
type RollbackFunc func(ctx context.Context) error

type baseline struct {
	errorRate float64
	p95       map[string]float64
}

// Watcher monitors error rate and per-endpoint p95 against a baseline
// captured at deploy time, and triggers rollback if a spike persists for a
// full window without clearing.
type Watcher struct {
	reg       *metrics.Registry
	incidents *incident.Manager
	alerts    *alert.Transport
	rollback  RollbackFunc
	endpoints func() []string
	log       *logger.Logger

	mu        sync.Mutex
	base      baseline
	spikeSince time.Time
	stopped   bool
	cancel    context.CancelFunc
}

func NewWatcher(reg *metrics.Registry, incidents *incident.Manager, alerts *alert.Transport, endpoints func() []string, log *logger.Logger) *Watcher {
	return &Watcher{reg: reg, incidents: incidents, alerts: alerts, endpoints: endpoints, log: log.With("component", "RollbackWatcher")}
}

// Start captures the baseline and begins polling every 30s until a spike
// persists for the full 60s window or Stop is called.
func (w *Watcher) Start(ctx context.Context, rollback RollbackFunc) {
	w.mu.Lock()
	w.rollback = rollback
	w.base = baseline{
		errorRate: w.reg.GaugeValue("http.error_rate"),
		p95:       w.snapshotP95(),
	}
	w.stopped = false
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(watchCtx)
}

func (w *Watcher) snapshotP95() map[string]float64 {
	out := map[string]float64{}
	for _, ep := range w.endpoints() {
		out[ep] = w.reg.Percentile("latency."+ep, 95)
	}
	return out
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(rollbackPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	base := w.base
	spikeSince := w.spikeSince
	w.mu.Unlock()

	errorRate := w.reg.GaugeValue("http.error_rate")
	spiking, offender := w.detectSpike(errorRate, base)

	if !spiking {
		w.mu.Lock()
		w.spikeSince = time.Time{}
		w.mu.Unlock()
		return
	}

	now := time.Now()
	if spikeSince.IsZero() {
		w.mu.Lock()
		w.spikeSince = now
		w.mu.Unlock()
		return
	}

	if now.Sub(spikeSince) < rollbackSpikeWindow {
		return
	}

	w.log.Error("rollback spike window exceeded", "offender", offender)
	w.alerts.Send(ctx, alert.Payload{
		Severity: "CRITICAL",
		Title:    "Auto-rollback triggered",
		Body:     fmt.Sprintf("sustained spike on %s", offender),
	})
	if _, err := w.incidents.CreateIncident(ctx, incident.CreateInput{
		Priority:      models.PriorityP1,
		Title:         "Auto-rollback triggered",
		InvariantName: "DEPLOY_ROLLBACK",
		Details:       map[string]any{"offender": offender, "errorRate": errorRate},
	}); err != nil {
		w.log.Error("rollback incident creation failed", "error", err)
	}

	w.Stop()
	if w.rollback != nil {
		if err := w.rollback(ctx); err != nil {
			w.log.Error("rollback function failed", "error", err)
		}
	}
}

func (w *Watcher) currentP95Spike(base baseline) (bool, string) {
	for ep, baseP95 := range base.p95 {
		current := w.reg.Percentile("latency."+ep, 95)
		if baseP95 > 0 && current > 2*baseP95 && current > 500 {
			return true, ep
		}
	}
	return false, ""
}

func detectSpikeErrorRate(current float64, base baseline) bool {
	return current > 3 && current > 2*base.errorRate
}

func (w *Watcher) detectSpike(errorRate float64, base baseline) (bool, string) {
	if detectSpikeErrorRate(errorRate, base) {
		return true, "error_rate"
	}
	if spiking, ep := w.currentP95Spike(base); spiking {
		return true, ep
	}
	return false, ""
}

// Stop halts polling; safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}
