package app

import (
	"context"
	"fmt"
	"time"

	"github.com/retailops/controlplane/internal/backupcheck"
	"github.com/retailops/controlplane/internal/config"
	"github.com/retailops/controlplane/internal/health"
	"github.com/retailops/controlplane/internal/invariant"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/perf"
	"github.com/retailops/controlplane/internal/report"
	"github.com/retailops/controlplane/internal/scheduler"
	"github.com/retailops/controlplane/internal/security"
	"github.com/retailops/controlplane/internal/selfheal/idempotency"
)

// registerJobs wires every background job at its spec-mandated cadence,
// matching §4.9's default cadences (all overridable through cfg). Every job
// runs on a fixed interval except executive_report, which is pinned to a
// real cron(5) wall-clock time (cfg.ExecReportCron) since an executive
// report is meaningful once a day at a fixed hour, not N milliseconds after
// the process happened to start.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg config.Config,
	perfEngine *perf.Engine,
	securityEngine *security.Engine,
	healthScorer *health.Scorer,
	invariantEngine *invariant.Engine,
	backupValidator *backupcheck.Validator,
	reportGen *report.Generator,
	idempotencyRegistry *idempotency.Registry,
) error {
	execReportSchedule, err := scheduler.NewCronExpression(cfg.ExecReportCron)
	if err != nil {
		return fmt.Errorf("parse EXEC_REPORT_CRON %q: %w", cfg.ExecReportCron, err)
	}

	sched.Register(scheduler.JobSpec{
		Name: "invariant", Interval: cfg.InvariantInterval, RunOnStart: true,
		Fn: func(ctx context.Context) error {
			_, _, err := invariantEngine.RunCycle(ctx)
			return err
		},
	})
	sched.Register(scheduler.JobSpec{
		Name: "performance", Interval: cfg.PerfInterval, RunOnStart: true,
		Fn: perfEngine.RunCycle,
	})
	sched.Register(scheduler.JobSpec{
		Name: "memory_sample", Interval: 60 * time.Second, RunOnStart: false,
		Fn: func(ctx context.Context) error {
			perfEngine.SampleMemory()
			return nil
		},
	})
	sched.Register(scheduler.JobSpec{
		Name: "security", Interval: cfg.SecurityInterval, RunOnStart: true,
		Fn: securityEngine.RunCycle,
	})
	sched.Register(scheduler.JobSpec{
		Name: "rate_limiter_cleanup", Interval: cfg.RateLimiterCleanInt, RunOnStart: false,
		Fn: func(ctx context.Context) error {
			securityEngine.CleanupRateLimiter()
			return nil
		},
	})
	sched.Register(scheduler.JobSpec{
		Name: "health", Interval: cfg.HealthInterval, RunOnStart: true,
		Fn: func(ctx context.Context) error {
			_, _, err := healthScorer.RunCycle(ctx)
			return err
		},
	})
	sched.Register(scheduler.JobSpec{
		Name: "backup_validation", Interval: cfg.BackupInterval, RunOnStart: false,
		Fn: backupValidator.RunCycle,
	})
	sched.Register(scheduler.JobSpec{
		Name: "executive_report", Schedule: execReportSchedule, RunOnStart: false,
		Fn: reportGen.RunCycle,
	})
	sched.Register(scheduler.JobSpec{
		Name: "idempotency_cleanup", Interval: cfg.IdempotencyCleanInt, RunOnStart: false,
		Fn: func(ctx context.Context) error {
			_, err := idempotencyRegistry.GC(ctx)
			return err
		},
	})
	return nil
}

// registerDefaultThresholds declares the breach rules the alert transport
// listens for via alert.BindMetricAlerts.
func registerDefaultThresholds(reg *metrics.Registry) {
	reg.DeclareThreshold(metrics.Threshold{
		Metric: "http.error_rate", Operator: metrics.OpGreaterThan, Value: 5,
		Severity: metrics.SeverityCritical, CooldownMs: 5 * 60 * 1000,
	})
	reg.DeclareThreshold(metrics.Threshold{
		Metric: "http.p95_latency_ms", Operator: metrics.OpGreaterThan, Value: 1000,
		Severity: metrics.SeverityHigh, CooldownMs: 5 * 60 * 1000,
	})
	reg.DeclareThreshold(metrics.Threshold{
		Metric: "perf.connection_pool_saturation_pct", Operator: metrics.OpGreaterThan, Value: 85,
		Severity: metrics.SeverityHigh, CooldownMs: 10 * 60 * 1000,
	})
	reg.DeclareThreshold(metrics.Threshold{
		Metric: "perf.heap_growth_mb_per_min", Operator: metrics.OpGreaterThan, Value: 10,
		Severity: metrics.SeverityMedium, CooldownMs: 15 * 60 * 1000,
	})
	reg.DeclareThreshold(metrics.Threshold{
		Metric: "health.score", Operator: metrics.OpLessThan, Value: 60,
		Severity: metrics.SeverityMedium, CooldownMs: 15 * 60 * 1000,
	})
}
