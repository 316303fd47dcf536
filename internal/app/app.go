// Package app wires the full control-plane dependency graph — repos,
// engines, scheduler, and HTTP router — and owns the process lifecycle:
// listen, wait for a shutdown signal, drain.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/backupcheck"
	"github.com/retailops/controlplane/internal/config"
	"github.com/retailops/controlplane/internal/db"
	"github.com/retailops/controlplane/internal/deploy"
	"github.com/retailops/controlplane/internal/health"
	"github.com/retailops/controlplane/internal/httpapi/handlers"
	"github.com/retailops/controlplane/internal/httpapi/middleware"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/invariant"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/perf"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/report"
	"github.com/retailops/controlplane/internal/repos"
	"github.com/retailops/controlplane/internal/scheduler"
	"github.com/retailops/controlplane/internal/security"
	"github.com/retailops/controlplane/internal/selfheal/idempotency"
)

const shutdownGracePeriod = 15 * time.Second

// App holds every long-lived collaborator the process needs to run and
// shut down cleanly.
type App struct {
	Log *logger.Logger
	// DuplicateDetector is exposed for the host application's own
	// business write handlers (order creation, payment capture) to call
	// directly — the business domain's write paths are out of scope for
	// this control plane, so there is no internal call site for it here.
	DuplicateDetector *idempotency.DuplicateDetector
	Config            config.Config
	db                *db.Service
	scheduler         *scheduler.Scheduler
	rollback          *deploy.Watcher
	server            *http.Server
	startedAt         time.Time
}

// New constructs the full dependency graph: metrics leaf first, then
// self-healing primitives, then every engine in the order the component
// design lists them, then the scheduler and the gin router.
func New() (*App, error) {
	startedAt := time.Now().UTC()

	log, err := logger.New(config.GetEnv("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg := config.Load(log)

	dbSvc, err := db.NewPostgresService(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := dbSvc.AutoMigrateAll(); err != nil {
		log.Warn("auto migration failed", "error", err)
	}
	gdb := dbSvc.DB()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	reg := metrics.NewRegistry()
	registerDefaultThresholds(reg)

	alerts := alert.NewTransport(log, reg, cfg.AlertWebhookURL, cfg.ExecutiveWebhookURL, cfg.SlackWebhookURL)
	alert.BindMetricAlerts(context.Background(), reg, alerts)

	// Repos.
	incidentRepo := repos.NewIncidentRepo(gdb, log)
	forensicRepo := repos.NewForensicRepo(gdb, log)
	violationRepo := repos.NewInvariantViolationRepo(gdb, log)
	driftRepo := repos.NewDriftScoreRepo(gdb, log)
	healthRepo := repos.NewHealthScoreRepo(gdb, log)
	safeModeRepo := repos.NewSafeModeRepo(gdb, log)
	idempotencyRepo := repos.NewIdempotencyRepo(gdb, log)
	securityEventRepo := repos.NewSecurityEventRepo(gdb, log)
	securityBlockRepo := repos.NewSecurityBlockRepo(gdb, log)
	auditChainRepo := repos.NewAuditChainRepo(gdb, log)
	perfObservationRepo := repos.NewPerfObservationRepo(gdb, log)
	backupValidationRepo := repos.NewBackupValidationRepo(gdb, log)
	gateRunRepo := repos.NewDeploymentGateRunRepo(gdb, log)
	executiveReportRepo := repos.NewExecutiveReportRepo(gdb, log)
	businessRepo := repos.NewBusinessRepo(gdb, log)

	// Incident manager — depended on by almost everything downstream.
	incidentMgr := incident.NewManager(incidentRepo, forensicRepo, alerts, log, startedAt)

	// Invariant engine.
	catalogue := []invariant.Invariant{
		invariant.NewNegativeStockCheck(businessRepo),
		invariant.NewSaleTotalCheck(businessRepo),
		invariant.NewPaymentSumCheck(businessRepo),
		invariant.NewDuplicateInvoiceCheck(businessRepo),
		invariant.NewStockMovementCheck(businessRepo),
		invariant.NewCreditLimitCheck(businessRepo),
		invariant.NewOrphanedSaleItemCheck(businessRepo),
	}
	invariantEngine := invariant.NewEngine(catalogue, violationRepo, driftRepo, incidentMgr, log)

	// Security engine.
	scanner := security.NewScanner(businessRepo, securityEventRepo, securityBlockRepo, incidentMgr, log)
	verifier := security.NewAuditVerifier(auditChainRepo, incidentMgr, log)
	securityEngine := security.NewEngine(0, scanner, verifier, securityBlockRepo, log)

	// Performance engine.
	perfEngine := perf.NewEngine(reg, businessRepo, perfObservationRepo, dbSvc, incidentMgr, alerts, log)

	// Health scorer.
	healthScorer := health.NewScorer(driftRepo, incidentRepo, backupValidationRepo, businessRepo, healthRepo, safeModeRepo, incidentMgr, alerts, reg, log)

	// Deployment gates + auto-rollback.
	gateRunner := deploy.NewRunner(
		incidentMgr, incidentRepo, driftRepo, backupValidationRepo, businessRepo,
		reg, gateRunRepo, alerts, log, noCoverageFunc, config.GetEnvAsBool("SKIP_COVERAGE_GATE", false, log),
	)
	rollbackWatcher := deploy.NewWatcher(reg, incidentMgr, alerts, perfEngine.Latency.Endpoints, log)

	// Backup validation + executive report.
	backupValidator := backupcheck.NewValidator(noopProber, backupValidationRepo, incidentMgr, alerts, log)
	reportGen := report.NewGenerator(driftRepo, healthRepo, incidentMgr, executiveReportRepo, alerts, log)

	// Idempotency.
	idempotencyRegistry := idempotency.NewRegistry(idempotencyRepo, reg, log)
	duplicateDetector := idempotency.NewDuplicateDetector(redisClient, 5*time.Minute, log)

	sched := scheduler.New(reg, log)
	if err := registerJobs(sched, cfg, perfEngine, securityEngine, healthScorer, invariantEngine, backupValidator, reportGen, idempotencyRegistry); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	if cfg.RunGatesAtBoot {
		if _, err := gateRunner.Run(context.Background(), "boot"); err != nil {
			log.Warn("deployment gates blocked at boot", "error", err)
		}
	}

	h := handlers.New(dbSvc, incidentMgr, driftRepo, healthScorer, healthRepo, reg, sched, reportGen, startedAt, log)
	router := newRouter(cfg, log, reg, perfEngine.Latency, healthScorer, securityEngine, idempotencyRegistry, h)

	srv := &http.Server{
		Addr:              ":" + config.GetEnv("PORT", "8080", log),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Log:               log,
		DuplicateDetector: duplicateDetector,
		Config:            cfg,
		db:                dbSvc,
		scheduler:         sched,
		rollback:          rollbackWatcher,
		server:            srv,
		startedAt:         startedAt,
	}, nil
}

// Run starts the scheduler and HTTP server and blocks until ctx is
// cancelled, then drains both within the shutdown grace period and shuts
// the HTTP server down within what remains of it.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)
	a.rollback.Start(ctx, a.noopRollback)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	a.Log.Info("control plane listening", "addr", a.server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		drained := make(chan struct{})
		go func() {
			a.rollback.Stop()
			a.scheduler.Stop()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			a.Log.Warn("background jobs did not drain within the shutdown grace period")
		}
		_ = a.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// noopRollback is the default auto-rollback action until the deploy caller
// (outside this control plane's scope) wires in the real deployment
// revert. It is intentionally a safe no-op rather than a stub error: the
// watcher still opens the incident and fires the alert either way.
func (a *App) noopRollback(ctx context.Context) error {
	a.Log.Warn("auto-rollback triggered but no rollback function is wired")
	return nil
}

// noCoverageFunc reports no coverage data available; callers that want the
// TEST_COVERAGE gate enforced wire in a real reader of their CI's coverage
// report and pass skipCoverage=false with that reader instead.
func noCoverageFunc(ctx context.Context) (float64, error) {
	return 0, fmt.Errorf("no coverage source configured")
}

// noopProber reports nothing was tested; a production deployment wires in
// a real restore-and-checksum probe against SHADOW_DB_URL.
func noopProber(ctx context.Context) (backupcheck.ProbeResult, error) {
	return backupcheck.ProbeResult{RestoreTested: false, DriftClean: false}, nil
}

func newRouter(
	cfg config.Config,
	log *logger.Logger,
	reg *metrics.Registry,
	latency *perf.LatencyTracker,
	healthScorer *health.Scorer,
	securityEngine *security.Engine,
	idempotencyRegistry *idempotency.Registry,
	h *handlers.Handlers,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("controlplane"))
	r.Use(middleware.Trace())
	r.Use(middleware.CORS(nil))
	r.Use(middleware.SafeModeGate(healthScorer))

	// SecurityGate and Accounting are attached per-group, never on the base
	// engine: for the admin group they must run after RequireAdmin so
	// SecurityGate can see the authenticated user id it sets, per spec
	// §4.5's "both IP and authenticated user-id, when present" contract.
	public := r.Group("/")
	public.Use(middleware.SecurityGate(securityEngine), middleware.Accounting(reg, latency))
	public.GET("/health", h.GetHealth)
	public.GET("/metrics", h.GetMetricsPrometheus)
	public.GET("/metrics/json", h.GetMetricsJSON)

	admin := r.Group("/")
	admin.Use(middleware.RequireAdmin(cfg.JWTSecretKey, cfg.AdminAPIKey), middleware.SecurityGate(securityEngine), middleware.Accounting(reg, latency))
	{
		admin.GET("/system-health", h.GetSystemHealth)
		admin.GET("/incidents", h.GetIncidents)
		admin.GET("/invariants/status", h.GetInvariantsStatus)
		admin.GET("/cron/status", h.GetCronStatus)
		admin.POST("/system-mode/safe", middleware.Idempotent(idempotencyRegistry, h.PostSafeModeEnable))
		admin.DELETE("/system-mode/safe", h.DeleteSafeModeDisable)
		admin.POST("/reports/executive", middleware.Idempotent(idempotencyRegistry, h.PostExecutiveReport))
	}

	return r
}
