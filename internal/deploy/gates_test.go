package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

type mockIncidentRepo struct {
	openP1 int64
}

func (m *mockIncidentRepo) Create(ctx context.Context, inc *models.Incident) error { return nil }
func (m *mockIncidentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	return nil, nil
}
func (m *mockIncidentRepo) FindOpenByInvariant(ctx context.Context, invariantName string) (*models.Incident, error) {
	return nil, nil
}
func (m *mockIncidentRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}
func (m *mockIncidentRepo) CountOpenByPriority(ctx context.Context, priority models.Priority) (int64, error) {
	if priority == models.PriorityP1 {
		return m.openP1, nil
	}
	return 0, nil
}
func (m *mockIncidentRepo) CountOpenByPriorities(ctx context.Context) (map[models.Priority]int64, error) {
	return map[models.Priority]int64{models.PriorityP1: m.openP1}, nil
}
func (m *mockIncidentRepo) ListOpen(ctx context.Context, limit int) ([]models.Incident, error) {
	return nil, nil
}

type mockDriftScoreRepo struct {
	latest *models.DriftScore
}

func (m *mockDriftScoreRepo) Insert(ctx context.Context, score int, components map[string]any) error {
	return nil
}
func (m *mockDriftScoreRepo) Latest(ctx context.Context) (*models.DriftScore, error) {
	return m.latest, nil
}
func (m *mockDriftScoreRepo) Last24h(ctx context.Context) ([]models.DriftScore, error) {
	return nil, nil
}

type mockBackupValidationRepo struct {
	latestPassed *models.BackupValidation
}

func (m *mockBackupValidationRepo) Insert(ctx context.Context, bv *models.BackupValidation) error {
	return nil
}
func (m *mockBackupValidationRepo) LatestPassed(ctx context.Context) (*models.BackupValidation, error) {
	return m.latestPassed, nil
}

type mockBusinessRepo struct {
	pendingMigrations int64
}

func (m *mockBusinessRepo) NegativeStock(ctx context.Context) ([]repos.NegativeStockRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) SaleTotalMismatches(ctx context.Context) ([]repos.SaleTotalMismatchRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) PaymentMismatches(ctx context.Context) ([]repos.PaymentMismatchRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) DuplicateInvoices(ctx context.Context) ([]repos.DuplicateInvoiceRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) StockMovementMismatches(ctx context.Context) ([]repos.StockMovementMismatchRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) CreditLimitExceeded(ctx context.Context) ([]repos.CreditLimitExceededRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) OrphanedSaleItems(ctx context.Context) ([]repos.OrphanedSaleItemRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) DeleteOrphanedSaleItems(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}
func (m *mockBusinessRepo) LargeTransactions(ctx context.Context, thresholdMinorUnits int64) ([]repos.LargeTransactionRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) RapidFireSalesUsers(ctx context.Context, windowMinutes, minSales int) ([]repos.RapidFireUserRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) VoidSpikeShops(ctx context.Context, minConfirmed int) ([]repos.VoidSpikeShopRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) PendingMigrationsCount(ctx context.Context) (int64, error) {
	return m.pendingMigrations, nil
}
func (m *mockBusinessRepo) SlowQueries(ctx context.Context, minMeanMs float64, minCalls int64) ([]repos.SlowQueryRow, error) {
	return nil, nil
}
func (m *mockBusinessRepo) SeqScanHotTables(ctx context.Context, minSeqScans, minTuples int64) ([]repos.SeqScanRow, error) {
	return nil, nil
}

type mockDeploymentGateRunRepo struct {
	lastPassed   bool
	lastGates    map[string]any
	lastBlockers map[string]any
}

func (m *mockDeploymentGateRunRepo) Insert(ctx context.Context, passed bool, gates, blockers map[string]any, triggeredBy string) error {
	m.lastPassed = passed
	m.lastGates = gates
	m.lastBlockers = blockers
	return nil
}
func (m *mockDeploymentGateRunRepo) Latest(ctx context.Context) (*models.DeploymentGateRun, error) {
	return nil, nil
}

func testLog(t *testing.T) *logger.Logger {
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func freshRunner(t *testing.T, incidentRepo repos.IncidentRepo, drift *mockDriftScoreRepo, backup *mockBackupValidationRepo, business *mockBusinessRepo, runs *mockDeploymentGateRunRepo, reg *metrics.Registry) *Runner {
	return NewRunner(nil, incidentRepo, drift, backup, business, reg, runs, alert.NewTransport(testLog(t), reg), testLog(t), nil, true)
}

func passingFixtures() (*mockIncidentRepo, *mockDriftScoreRepo, *mockBackupValidationRepo, *mockBusinessRepo, *mockDeploymentGateRunRepo, *metrics.Registry) {
	return &mockIncidentRepo{openP1: 0},
		&mockDriftScoreRepo{latest: &models.DriftScore{Score: 95}},
		&mockBackupValidationRepo{latestPassed: &models.BackupValidation{ValidatedAt: time.Now().Add(-1 * time.Hour)}},
		&mockBusinessRepo{pendingMigrations: 0},
		&mockDeploymentGateRunRepo{},
		metrics.NewRegistry()
}

func TestRunAllGatesPassWhenEverythingHealthy(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	results, err := r.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Len(t, results, 6)
	for _, res := range results {
		assert.True(t, res.Passed, res.Name)
	}
	assert.True(t, runs.lastPassed)
}

// TestRunBlocksOnOpenP1Incident is spec §8 scenario 5: one open P1 incident
// blocks the deploy even though every other gate passes.
func TestRunBlocksOnOpenP1Incident(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	incidentRepo.openP1 = 1
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	results, err := r.Run(context.Background(), "test")
	require.Error(t, err)
	blocked, ok := err.(*ErrGateBlocked)
	require.True(t, ok)
	require.Len(t, blocked.Blockers, 1)
	assert.Equal(t, "NO_OPEN_P1_INCIDENTS", blocked.Blockers[0].Name)
	assert.False(t, runs.lastPassed)

	var sawFailure bool
	for _, res := range results {
		if res.Name == "NO_OPEN_P1_INCIDENTS" {
			sawFailure = true
			assert.False(t, res.Passed)
		}
	}
	assert.True(t, sawFailure)
}

func TestRunBlocksOnLowDriftScore(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	drift.latest = &models.DriftScore{Score: 50}
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	_, err := r.Run(context.Background(), "test")
	require.Error(t, err)
	blocked := err.(*ErrGateBlocked)
	assert.Equal(t, "DRIFT_SCORE", blocked.Blockers[0].Name)
}

func TestRunBlocksOnStaleBackup(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	backup.latestPassed = &models.BackupValidation{ValidatedAt: time.Now().Add(-48 * time.Hour)}
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	_, err := r.Run(context.Background(), "test")
	require.Error(t, err)
	blocked := err.(*ErrGateBlocked)
	assert.Equal(t, "BACKUP_FRESHNESS", blocked.Blockers[0].Name)
}

func TestRunBlocksOnHighErrorRate(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	reg.Set("http.error_rate", 10)
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	_, err := r.Run(context.Background(), "test")
	require.Error(t, err)
	blocked := err.(*ErrGateBlocked)
	assert.Equal(t, "ERROR_RATE", blocked.Blockers[0].Name)
}

func TestRunBlocksOnPendingMigrations(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	business.pendingMigrations = 2
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	_, err := r.Run(context.Background(), "test")
	require.Error(t, err)
	blocked := err.(*ErrGateBlocked)
	assert.Equal(t, "MIGRATIONS_CLEAN", blocked.Blockers[0].Name)
}

func TestRunSkipsCoverageGateWhenConfigured(t *testing.T) {
	incidentRepo, drift, backup, business, runs, reg := passingFixtures()
	r := freshRunner(t, incidentRepo, drift, backup, business, runs, reg)

	results, err := r.Run(context.Background(), "test")
	require.NoError(t, err)
	for _, res := range results {
		if res.Name == "TEST_COVERAGE" {
			assert.True(t, res.Passed)
			assert.Equal(t, "skipped", res.Detail)
		}
	}
}
