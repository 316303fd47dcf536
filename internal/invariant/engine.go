package invariant

import (
	"context"
	"math"

	"github.com/retailops/controlplane/internal/incident"
	ivtypes "github.com/retailops/controlplane/internal/invariant/types"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

type Engine struct {
	catalogue  []Invariant
	violations repos.InvariantViolationRepo
	drift      repos.DriftScoreRepo
	incidents  *incident.Manager
	log        *logger.Logger
}

func NewEngine(catalogue []Invariant, violations repos.InvariantViolationRepo, drift repos.DriftScoreRepo, incidents *incident.Manager, log *logger.Logger) *Engine {
	return &Engine{
		catalogue:  catalogue,
		violations: violations,
		drift:      drift,
		incidents:  incidents,
		log:        log.With("component", "InvariantEngine"),
	}
}

// RunCycle executes every check in registration order, persists up to
// MaxViolationsPerCycle violations across the whole cycle (not per
// invariant; rows are kept in registration order, so an early check with
// many violations can fill the whole budget and leave later checks' rows
// unpersisted) and the composite drift score, and feeds failed results to the
// incident manager only after every check has completed — so the drift
// score reflects one coherent snapshot.
func (e *Engine) RunCycle(ctx context.Context) ([]ivtypes.Result, int, error) {
	results := make([]ivtypes.Result, 0, len(e.catalogue))
	var rows []models.InvariantViolation

	for _, inv := range e.catalogue {
		result := e.runOne(ctx, inv)
		results = append(results, result)

		for _, v := range result.Violations {
			rows = append(rows, models.InvariantViolation{
				InvariantName: result.Name,
				ShopID:        v.ShopID,
				EntityID:      v.EntityID,
				EntityType:    v.EntityType,
				Details:       repos.JSONMap(v.Detail),
				AutoCorrected: result.AutoCorrected,
			})
		}
	}

	if len(rows) > repos.MaxViolationsPerCycle {
		rows = rows[:repos.MaxViolationsPerCycle]
	}
	if err := e.violations.InsertBatch(ctx, rows); err != nil {
		e.log.Error("persist violations failed", "error", err)
	}

	score, components := ComputeDriftScore(results)
	if err := e.drift.Insert(ctx, score, components); err != nil {
		e.log.Error("persist drift score failed", "error", err)
	}

	for _, result := range results {
		if result.Passed {
			continue
		}
		if err := e.incidents.CreateOrUpdateFromInvariant(ctx, result, models.Priority(result.Priority)); err != nil {
			e.log.Error("incident update from invariant failed", "invariant", result.Name, "error", err)
		}
	}

	return results, score, nil
}

func (e *Engine) runOne(ctx context.Context, inv Invariant) ivtypes.Result {
	violations, err := inv.Check(ctx)
	if err != nil {
		e.log.Error("invariant check failed", "invariant", inv.Name(), "error", err)
		return ivtypes.Result{Name: inv.Name(), Priority: string(inv.Priority()), Passed: false, Err: err}
	}

	autoCorrected := false
	if len(violations) > 0 && inv.SafeToAutoCorrect() {
		if err := inv.AutoCorrect(ctx, violations); err != nil {
			e.log.Error("auto-correct failed", "invariant", inv.Name(), "error", err)
		} else {
			autoCorrected = true
		}
	}

	passed := len(violations) == 0 || autoCorrected
	return ivtypes.Result{
		Name:          inv.Name(),
		Priority:      string(inv.Priority()),
		Passed:        passed,
		DriftScore:    perInvariantScore(len(violations), weightFor(inv.Name())),
		Violations:    violations,
		AutoCorrected: autoCorrected,
	}
}

func perInvariantScore(count int, weight float64) int {
	if count == 0 {
		return 100
	}
	deduction := weight * math.Log10(float64(count)+1)
	if deduction > weight {
		deduction = weight
	}
	score := 100 - deduction
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// ComputeDriftScore is a pure function: equal inputs yield equal outputs.
// It starts at 100 and, for each failed invariant, subtracts
// min(weight, weight*log10(count+1)) — the log scaling means a single rogue
// row costs far less than a widespread class of violations, while no single
// invariant can ever remove more than its own weight.
func ComputeDriftScore(results []ivtypes.Result) (int, map[string]any) {
	score := 100.0
	components := map[string]any{}
	for _, r := range results {
		count := len(r.Violations)
		components[r.Name] = map[string]any{"passed": r.Passed, "count": count}
		if r.Passed {
			continue
		}
		weight := weightFor(r.Name)
		deduction := weight * math.Log10(float64(count)+1)
		if deduction > weight {
			deduction = weight
		}
		score -= deduction
	}
	if score < 0 {
		score = 0
	}
	return int(math.Round(score)), components
}
