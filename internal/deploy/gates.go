// Package deploy implements the deployment gate runner and the
// auto-rollback watcher that follows a successful deploy.
package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const (
	minDriftScore       = 85
	minTestCoveragePct  = 85.0
	maxBackupAge        = 24 * time.Hour
	maxErrorRatePct     = 3.0
)

// GateResult is one predicate's outcome.
type GateResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail,omitempty"`
	Blocking bool   `json:"blocking"`
}

// CoverageFunc is injected so the gate runner never shells out itself; the
// caller wires in whatever reads the external coverage report.
type CoverageFunc func(ctx context.Context) (float64, error)

// ErrGateBlocked is returned when the run has at least one failed blocking
// gate; it is terminal — the caller must abort the deploy.
type ErrGateBlocked struct {
	Blockers []GateResult
}

func (e *ErrGateBlocked) Error() string {
	return fmt.Sprintf("deployment gates blocked: %d blocking failure(s)", len(e.Blockers))
}

// Runner evaluates the fixed gate set in parallel and persists one run.
type Runner struct {
	incidents       *incident.Manager
	incidentRepo    repos.IncidentRepo
	driftRepo       repos.DriftScoreRepo
	backupRepo      repos.BackupValidationRepo
	business        repos.BusinessRepo
	reg             *metrics.Registry
	runs            repos.DeploymentGateRunRepo
	alerts          *alert.Transport
	log             *logger.Logger
	skipCoverage    bool
	coverage        CoverageFunc
}

func NewRunner(
	incidents *incident.Manager,
	incidentRepo repos.IncidentRepo,
	driftRepo repos.DriftScoreRepo,
	backupRepo repos.BackupValidationRepo,
	business repos.BusinessRepo,
	reg *metrics.Registry,
	runs repos.DeploymentGateRunRepo,
	alerts *alert.Transport,
	log *logger.Logger,
	coverage CoverageFunc,
	skipCoverage bool,
) *Runner {
	return &Runner{
		incidents: incidents, incidentRepo: incidentRepo, driftRepo: driftRepo,
		backupRepo: backupRepo, business: business, reg: reg, runs: runs, alerts: alerts,
		log: log.With("component", "DeploymentGateRunner"), coverage: coverage, skipCoverage: skipCoverage,
	}
}

func (r *Runner) gates() []struct {
	name     string
	blocking bool
	run      func(ctx context.Context) (bool, string, error)
} {
	return []struct {
		name     string
		blocking bool
		run      func(ctx context.Context) (bool, string, error)
	}{
		{"NO_OPEN_P1_INCIDENTS", true, r.checkNoOpenP1},
		{"DRIFT_SCORE", true, r.checkDriftScore},
		{"TEST_COVERAGE", true, r.checkTestCoverage},
		{"BACKUP_FRESHNESS", true, r.checkBackupFreshness},
		{"ERROR_RATE", true, r.checkErrorRate},
		{"MIGRATIONS_CLEAN", true, r.checkMigrationsClean},
	}
}

// Run evaluates every gate concurrently via errgroup, persists the run, and
// returns ErrGateBlocked if any blocking gate failed.
func (r *Runner) Run(ctx context.Context, triggeredBy string) ([]GateResult, error) {
	gates := r.gates()
	results := make([]GateResult, len(gates))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, gate := range gates {
		i, gate := i, gate
		g.Go(func() error {
			passed, detail, err := safeRun(gctx, gate.run)
			if err != nil {
				passed = false
				detail = err.Error()
			}
			mu.Lock()
			results[i] = GateResult{Name: gate.name, Passed: passed, Detail: detail, Blocking: gate.blocking}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	gatesMap := map[string]any{}
	var blockers []GateResult
	for _, res := range results {
		gatesMap[res.Name] = res
		if !res.Passed && res.Blocking {
			blockers = append(blockers, res)
		}
	}
	blockersMap := map[string]any{}
	for _, b := range blockers {
		blockersMap[b.Name] = b
	}

	allPassed := len(blockers) == 0
	if err := r.runs.Insert(ctx, allPassed, gatesMap, blockersMap, triggeredBy); err != nil {
		r.log.Error("deployment gate run persist failed", "error", err)
	}

	if !allPassed {
		r.alerts.Send(ctx, alert.Payload{
			Severity: "CRITICAL",
			Title:    "Deployment gates blocked",
			Body:     fmt.Sprintf("%d blocking gate(s) failed", len(blockers)),
		})
		return results, &ErrGateBlocked{Blockers: blockers}
	}
	return results, nil
}

// safeRun treats a panic from a gate predicate the same as a throw: a
// failed, blocking result carrying the error in detail.
func safeRun(ctx context.Context, fn func(ctx context.Context) (bool, string, error)) (passed bool, detail string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			passed, detail, err = false, fmt.Sprintf("panic: %v", rec), fmt.Errorf("gate panicked: %v", rec)
		}
	}()
	passed, detail, err = fn(ctx)
	return
}

func (r *Runner) checkNoOpenP1(ctx context.Context) (bool, string, error) {
	count, err := r.incidentRepo.CountOpenByPriority(ctx, models.PriorityP1)
	if err != nil {
		return false, "", err
	}
	if count == 0 {
		return true, "", nil
	}
	return false, fmt.Sprintf("%d open P1 incident(s)", count), nil
}

func (r *Runner) checkDriftScore(ctx context.Context) (bool, string, error) {
	drift, err := r.driftRepo.Latest(ctx)
	if err != nil {
		return false, "", err
	}
	if drift == nil {
		return false, "no drift score recorded", nil
	}
	if drift.Score >= minDriftScore {
		return true, fmt.Sprintf("drift score %d", drift.Score), nil
	}
	return false, fmt.Sprintf("drift score %d below %d", drift.Score, minDriftScore), nil
}

func (r *Runner) checkTestCoverage(ctx context.Context) (bool, string, error) {
	if r.skipCoverage || r.coverage == nil {
		return true, "skipped", nil
	}
	pct, err := r.coverage(ctx)
	if err != nil {
		return false, "", err
	}
	if pct >= minTestCoveragePct {
		return true, fmt.Sprintf("coverage %.1f%%", pct), nil
	}
	return false, fmt.Sprintf("coverage %.1f%% below %.1f%%", pct, minTestCoveragePct), nil
}

func (r *Runner) checkBackupFreshness(ctx context.Context) (bool, string, error) {
	backup, err := r.backupRepo.LatestPassed(ctx)
	if err != nil {
		return false, "", err
	}
	if backup == nil {
		return false, "no passed backup validation", nil
	}
	age := time.Since(backup.ValidatedAt)
	if age < maxBackupAge {
		return true, age.String(), nil
	}
	return false, fmt.Sprintf("latest passed backup is %s old", age), nil
}

func (r *Runner) checkErrorRate(ctx context.Context) (bool, string, error) {
	rate := r.reg.GaugeValue("http.error_rate")
	if rate <= maxErrorRatePct {
		return true, fmt.Sprintf("%.2f%%", rate), nil
	}
	return false, fmt.Sprintf("error rate %.2f%% above %.2f%%", rate, maxErrorRatePct), nil
}

func (r *Runner) checkMigrationsClean(ctx context.Context) (bool, string, error) {
	pending, err := r.business.PendingMigrationsCount(ctx)
	if err != nil {
		return false, "", err
	}
	if pending == 0 {
		return true, "", nil
	}
	return false, fmt.Sprintf("%d pending migration(s)", pending), nil
}
