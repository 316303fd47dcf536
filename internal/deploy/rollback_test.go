package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
)

func TestDetectSpikeErrorRateTable(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		base    float64
		want    bool
	}{
		{"below absolute floor never spikes", 2, 0.5, false},
		{"above floor but not double baseline", 4, 3, false},
		{"above floor and double baseline spikes", 4, 1, true},
		// baseline of exactly zero is the open-question case: the formula
		// is implemented literally, so any current > 3 counts as a spike
		// (2*0 is always exceeded) rather than being treated as "no
		// baseline data yet, skip the check".
		{"zero baseline with current above floor spikes", 5, 0, true},
		{"zero baseline with current at or below floor does not spike", 3, 0, false},
	}
	for _, c := range cases {
		got := detectSpikeErrorRate(c.current, baseline{errorRate: c.base})
		assert.Equal(t, c.want, got, c.name)
	}
}

func newTestWatcher(t *testing.T) *Watcher {
	log, err := logger.New("development")
	if err != nil {
		t.Fatal(err)
	}
	reg := metrics.NewRegistry()
	return NewWatcher(reg, nil, nil, func() []string { return []string{"/sales"} }, log)
}

func TestCurrentP95SpikeRequiresBothDoubleBaselineAndAbsoluteFloor(t *testing.T) {
	w := newTestWatcher(t)

	for i := 0; i < 20; i++ {
		w.reg.Record("latency./sales", 100)
	}
	baseWithLowP95 := baseline{p95: map[string]float64{"/sales": 100}}
	spiking, ep := w.currentP95Spike(baseWithLowP95)
	assert.False(t, spiking, "current matches baseline, no spike")
	assert.Empty(t, ep)

	for i := 0; i < 20; i++ {
		w.reg.Record("latency./sales", 900)
	}
	spiking, ep = w.currentP95Spike(baseWithLowP95)
	assert.True(t, spiking)
	assert.Equal(t, "/sales", ep)
}

func TestCurrentP95SpikeIgnoresZeroBaseline(t *testing.T) {
	w := newTestWatcher(t)
	for i := 0; i < 20; i++ {
		w.reg.Record("latency./sales", 900)
	}
	spiking, _ := w.currentP95Spike(baseline{p95: map[string]float64{"/sales": 0}})
	assert.False(t, spiking, "a zero baseline p95 must not trigger a spike on its own")
}

func TestDetectSpikePrefersErrorRateOffenderName(t *testing.T) {
	w := newTestWatcher(t)
	spiking, offender := w.detectSpike(10, baseline{errorRate: 1})
	assert.True(t, spiking)
	assert.Equal(t, "error_rate", offender)
}
