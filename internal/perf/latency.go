// Package perf implements the performance engine: per-endpoint latency
// tracking, slow-query/index advisories, heap growth trend, connection pool
// saturation, and the overload predictor that rolls all of it into one
// 0-100 risk score.
package perf

import (
	"sync"
	"time"

	"github.com/retailops/controlplane/internal/metrics"
)

const latencyResetInterval = 5 * time.Minute

// LatencyTracker wraps the metrics registry's histograms, keeping its own
// set of known endpoint names so it can reset all of them on a rolling
// cadence without the registry needing to expose histogram enumeration.
type LatencyTracker struct {
	reg  *metrics.Registry
	mu   sync.Mutex
	seen map[string]struct{}
	lastReset time.Time
}

func NewLatencyTracker(reg *metrics.Registry) *LatencyTracker {
	return &LatencyTracker{reg: reg, seen: map[string]struct{}{}, lastReset: time.Now()}
}

func metricName(endpoint string) string { return "latency." + endpoint }

func (t *LatencyTracker) Record(endpoint string, ms float64) {
	t.mu.Lock()
	t.seen[endpoint] = struct{}{}
	t.mu.Unlock()
	t.reg.Record(metricName(endpoint), ms)
}

func (t *LatencyTracker) P50(endpoint string) float64 { return t.reg.Percentile(metricName(endpoint), 50) }
func (t *LatencyTracker) P95(endpoint string) float64 { return t.reg.Percentile(metricName(endpoint), 95) }
func (t *LatencyTracker) P99(endpoint string) float64 { return t.reg.Percentile(metricName(endpoint), 99) }

// Endpoints returns every endpoint name observed since the tracker was
// created; a rolling reset clears the histograms but keeps the names.
func (t *LatencyTracker) Endpoints() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.seen))
	for e := range t.seen {
		out = append(out, e)
	}
	return out
}

// MaybeRollingReset resets every tracked endpoint's histogram once the
// 5-minute window elapses, returning true if a reset happened.
func (t *LatencyTracker) MaybeRollingReset() bool {
	t.mu.Lock()
	if time.Since(t.lastReset) < latencyResetInterval {
		t.mu.Unlock()
		return false
	}
	endpoints := make([]string, 0, len(t.seen))
	for e := range t.seen {
		endpoints = append(endpoints, e)
	}
	t.lastReset = time.Now()
	t.mu.Unlock()

	for _, e := range endpoints {
		t.reg.ResetHistogram(metricName(e))
	}
	return true
}
