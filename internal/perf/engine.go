package perf

import (
	"context"
	"time"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

// ConnStats is the subset of *db.Service the performance engine needs;
// declared locally so this package doesn't import the db package directly.
type ConnStats interface {
	ConnectionStats() (active, idle, max int, err error)
}

type Engine struct {
	Latency   *LatencyTracker
	MemTrend  *MemoryTrend
	business  repos.BusinessRepo
	perfRepo  repos.PerfObservationRepo
	conn      ConnStats
	reg       *metrics.Registry
	incidents *incident.Manager
	alerts    *alert.Transport
	log       *logger.Logger
}

func NewEngine(reg *metrics.Registry, business repos.BusinessRepo, perfRepo repos.PerfObservationRepo, conn ConnStats, incidents *incident.Manager, alerts *alert.Transport, log *logger.Logger) *Engine {
	return &Engine{
		Latency:   NewLatencyTracker(reg),
		MemTrend:  NewMemoryTrend(),
		business:  business,
		perfRepo:  perfRepo,
		conn:      conn,
		reg:       reg,
		incidents: incidents,
		alerts:    alerts,
		log:       log.With("component", "PerformanceEngine"),
	}
}

// SampleMemory is invoked every 60s by the scheduler.
func (e *Engine) SampleMemory() {
	e.MemTrend.Sample()
	e.reg.Set("perf.heap_growth_mb_per_min", e.MemTrend.SlopeMBPerMinute())
}

// SaturationPct computes (active+idle)/max as a percentage and publishes it
// as a gauge.
func (e *Engine) SaturationPct() float64 {
	active, idle, max, err := e.conn.ConnectionStats()
	if err != nil || max == 0 {
		return 0
	}
	pct := float64(active+idle) / float64(max) * 100
	e.reg.Set("perf.connection_pool_saturation_pct", pct)
	return pct
}

// RunCycle is the cron-driven performance pass: collect advisory signals,
// persist one PerfObservation for every tracked endpoint (its current
// p95/p99, no baseline filter), run the overload predictor, and escalate
// on CRITICAL.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.Latency.MaybeRollingReset()

	advisory, err := CollectAdvisory(ctx, e.business)
	if err != nil {
		e.log.Error("advisory collection failed", "error", err)
	}

	for _, endpoint := range e.Latency.Endpoints() {
		obs := &models.PerfObservation{
			Endpoint:    endpoint,
			P95Ms:       e.Latency.P95(endpoint),
			P99Ms:       e.Latency.P99(endpoint),
			SampleCount: 0,
			ObservedAt:  time.Now().UTC(),
		}
		if len(advisory.SlowQueries) > 0 {
			obs.SlowQuery = advisory.SlowQueries[0].Query
		}
		if len(advisory.HotTables) > 0 {
			obs.IndexSuggestion = "add index on " + advisory.HotTables[0].TableName
		}
		if err := e.perfRepo.Insert(ctx, obs); err != nil {
			e.log.Error("perf observation persist failed", "endpoint", endpoint, "error", err)
		}
	}

	return e.evaluateOverload(ctx)
}

func (e *Engine) evaluateOverload(ctx context.Context) error {
	saturation := e.SaturationPct()
	errorRate := e.reg.GaugeValue("http.error_rate")

	var worstP95, worstBaseline float64
	for _, endpoint := range e.Latency.Endpoints() {
		p95 := e.Latency.P95(endpoint)
		baseline := e.Latency.P50(endpoint)
		if baseline > 0 && p95/baseline > worstRatio(worstP95, worstBaseline) {
			worstP95, worstBaseline = p95, baseline
		}
	}

	score, band := Score(Signals{
		P95:               worstP95,
		BaselineP50:       worstBaseline,
		SaturationPct:     saturation,
		ErrorRatePct:      errorRate,
		MemGrowthMBPerMin: e.MemTrend.SlopeMBPerMinute(),
	})
	e.reg.Set("perf.overload_score", float64(score))

	if band != RiskCritical {
		return nil
	}

	e.alerts.Send(ctx, alert.Payload{
		Severity: "CRITICAL",
		Title:    "Overload risk CRITICAL",
		Body:     "overload predictor score crossed critical band",
		Metric:   "perf.overload_score",
		ActualValue: float64(score),
	})
	_, err := e.incidents.CreateIncident(ctx, incident.CreateInput{
		Priority:      models.PriorityP2,
		Title:         "Overload risk CRITICAL",
		InvariantName: "OVERLOAD_PREDICTOR",
		Details: map[string]any{
			"score": score, "saturationPct": saturation, "errorRatePct": errorRate,
		},
	})
	return err
}

func worstRatio(p95, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return p95 / baseline
}
