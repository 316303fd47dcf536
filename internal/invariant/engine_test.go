package invariant

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	ivtypes "github.com/retailops/controlplane/internal/invariant/types"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

func TestComputeDriftScoreAllPassedIsOneHundred(t *testing.T) {
	results := []ivtypes.Result{
		{Name: "NO_NEGATIVE_STOCK", Passed: true},
		{Name: "NO_ORPHANED_SALE_ITEMS", Passed: true},
	}
	score, components := ComputeDriftScore(results)
	assert.Equal(t, 100, score)
	assert.Len(t, components, 2)
}

// TestComputeDriftScoreSingleViolationMatchesLogFormula exercises the exact
// contract: deduction = min(weight, weight*log10(count+1)).
func TestComputeDriftScoreSingleViolationMatchesLogFormula(t *testing.T) {
	weight := weightFor("NO_NEGATIVE_STOCK")
	results := []ivtypes.Result{
		{Name: "NO_NEGATIVE_STOCK", Passed: false, Violations: make([]ivtypes.ViolationRecord, 1)},
	}
	score, _ := ComputeDriftScore(results)

	wantDeduction := weight * math.Log10(2)
	wantScore := int(math.Round(100 - wantDeduction))
	assert.Equal(t, wantScore, score)
}

// TestComputeDriftScoreHugeCountSaturatesAtWeightCap checks that no single
// invariant can ever deduct more than its own weight, however large the
// violation count grows.
func TestComputeDriftScoreHugeCountSaturatesAtWeightCap(t *testing.T) {
	weight := weightFor("NO_NEGATIVE_STOCK")
	results := []ivtypes.Result{
		{Name: "NO_NEGATIVE_STOCK", Passed: false, Violations: make([]ivtypes.ViolationRecord, 1_000_000)},
	}
	score, _ := ComputeDriftScore(results)
	assert.Equal(t, int(math.Round(100-weight)), score)
}

func TestComputeDriftScoreUnknownInvariantUsesDefaultWeight(t *testing.T) {
	results := []ivtypes.Result{
		{Name: "SOME_NEW_CHECK_NOT_IN_WEIGHTS_TABLE", Passed: false, Violations: make([]ivtypes.ViolationRecord, 1)},
	}
	score, _ := ComputeDriftScore(results)
	wantDeduction := defaultWeight * math.Log10(2)
	assert.Equal(t, int(math.Round(100-wantDeduction)), score)
}

func TestComputeDriftScoreNeverGoesBelowZero(t *testing.T) {
	results := []ivtypes.Result{
		{Name: "NO_NEGATIVE_STOCK", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "SALE_TOTAL_MATCHES_LINE_ITEMS", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "PAYMENT_SUM_MATCHES_SALE_TOTAL", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "NO_DUPLICATE_INVOICES", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "STOCK_MOVEMENT_BALANCE", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "CREDIT_LIMIT_NOT_EXCEEDED", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
		{Name: "NO_ORPHANED_SALE_ITEMS", Passed: false, Violations: make([]ivtypes.ViolationRecord, 5)},
	}
	score, _ := ComputeDriftScore(results)
	assert.GreaterOrEqual(t, score, 0)
}

func TestComputeDriftScoreIsPureAcrossRepeatedCalls(t *testing.T) {
	results := []ivtypes.Result{
		{Name: "NO_NEGATIVE_STOCK", Passed: false, Violations: make([]ivtypes.ViolationRecord, 3)},
		{Name: "NO_ORPHANED_SALE_ITEMS", Passed: true},
	}
	score1, _ := ComputeDriftScore(results)
	score2, _ := ComputeDriftScore(results)
	assert.Equal(t, score1, score2)
}

func TestPerInvariantScoreZeroViolationsIsOneHundred(t *testing.T) {
	assert.Equal(t, 100, perInvariantScore(0, weightFor("NO_NEGATIVE_STOCK")))
}

func TestPerInvariantScoreSaturatesAtWeight(t *testing.T) {
	w := weightFor("NO_ORPHANED_SALE_ITEMS")
	got := perInvariantScore(1_000_000, w)
	assert.Equal(t, int(math.Round(100-w)), got)
}

// fakeInvariant always reports n violations and is never auto-correctable.
type fakeInvariant struct {
	name string
	n    int
}

func (f fakeInvariant) Name() string                 { return f.name }
func (f fakeInvariant) Priority() models.Priority     { return models.PriorityP2 }
func (f fakeInvariant) SafeToAutoCorrect() bool       { return false }
func (f fakeInvariant) AutoCorrect(ctx context.Context, violations []ivtypes.ViolationRecord) error {
	return nil
}
func (f fakeInvariant) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	out := make([]ivtypes.ViolationRecord, f.n)
	for i := range out {
		out[i] = ivtypes.ViolationRecord{EntityID: f.name}
	}
	return out, nil
}

type mockViolationRepo struct {
	calls int
	rows  []models.InvariantViolation
}

func (m *mockViolationRepo) InsertBatch(ctx context.Context, rows []models.InvariantViolation) error {
	m.calls++
	m.rows = rows
	return nil
}

type mockDriftRepo struct{}

func (m *mockDriftRepo) Insert(ctx context.Context, score int, components map[string]any) error {
	return nil
}
func (m *mockDriftRepo) Latest(ctx context.Context) (*models.DriftScore, error) { return nil, nil }
func (m *mockDriftRepo) Last24h(ctx context.Context) ([]models.DriftScore, error) {
	return nil, nil
}

type noopIncidentRepo struct{}

func (noopIncidentRepo) Create(ctx context.Context, inc *models.Incident) error { return nil }
func (noopIncidentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	return nil, nil
}
func (noopIncidentRepo) FindOpenByInvariant(ctx context.Context, invariantName string) (*models.Incident, error) {
	return nil, nil
}
func (noopIncidentRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}
func (noopIncidentRepo) CountOpenByPriority(ctx context.Context, priority models.Priority) (int64, error) {
	return 0, nil
}
func (noopIncidentRepo) CountOpenByPriorities(ctx context.Context) (map[models.Priority]int64, error) {
	return map[models.Priority]int64{}, nil
}
func (noopIncidentRepo) ListOpen(ctx context.Context, limit int) ([]models.Incident, error) {
	return nil, nil
}

var _ repos.IncidentRepo = noopIncidentRepo{}

type noopForensicRepo struct{}

func (noopForensicRepo) Snapshot(ctx context.Context, startedAt time.Time) map[string]any {
	return map[string]any{}
}

func testEngineDeps(t *testing.T, catalogue []Invariant) (*Engine, *mockViolationRepo) {
	log, err := logger.New("development")
	require.NoError(t, err)
	violations := &mockViolationRepo{}
	drift := &mockDriftRepo{}
	mgr := incident.NewManager(noopIncidentRepo{}, noopForensicRepo{}, alert.NewTransport(log, metrics.NewRegistry()), log, time.Now())
	return NewEngine(catalogue, violations, drift, mgr, log), violations
}

// TestRunCycleCapsViolationsAcrossWholeCycleNotPerInvariant is the regression
// test for the cycle-wide MaxViolationsPerCycle budget: two invariants each
// producing 80 violations must still collapse into one InsertBatch call
// capped at repos.MaxViolationsPerCycle total, not 80 per invariant.
func TestRunCycleCapsViolationsAcrossWholeCycleNotPerInvariant(t *testing.T) {
	catalogue := []Invariant{
		fakeInvariant{name: "A", n: 80},
		fakeInvariant{name: "B", n: 80},
	}
	engine, violations := testEngineDeps(t, catalogue)

	_, _, err := engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, violations.calls, "violations must be persisted once per cycle, not once per invariant")
	assert.LessOrEqual(t, len(violations.rows), repos.MaxViolationsPerCycle)
	assert.Equal(t, repos.MaxViolationsPerCycle, len(violations.rows))
}

func TestRunCycleBelowCapPersistsEverything(t *testing.T) {
	catalogue := []Invariant{
		fakeInvariant{name: "A", n: 3},
		fakeInvariant{name: "B", n: 4},
	}
	engine, violations := testEngineDeps(t, catalogue)

	_, _, err := engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, violations.calls)
	assert.Len(t, violations.rows, 7)
}
