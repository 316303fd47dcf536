// Package handlers implements the control-plane-only HTTP surface from the
// external interfaces section: health, system-health, incidents, invariant
// status, cron status, metrics exposition, safe-mode control, and the
// on-demand executive report trigger.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retailops/controlplane/internal/db"
	"github.com/retailops/controlplane/internal/health"
	"github.com/retailops/controlplane/internal/httpapi/response"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
	"github.com/retailops/controlplane/internal/report"
	"github.com/retailops/controlplane/internal/scheduler"
)

type Handlers struct {
	db        *db.Service
	incidents *incident.Manager
	drift     repos.DriftScoreRepo
	health    *health.Scorer
	healthRepo repos.HealthScoreRepo
	reg       *metrics.Registry
	sched     *scheduler.Scheduler
	reportGen *report.Generator
	startedAt time.Time
	log       *logger.Logger
}

func New(
	dbSvc *db.Service,
	incidents *incident.Manager,
	drift repos.DriftScoreRepo,
	healthScorer *health.Scorer,
	healthRepo repos.HealthScoreRepo,
	reg *metrics.Registry,
	sched *scheduler.Scheduler,
	reportGen *report.Generator,
	startedAt time.Time,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		db: dbSvc, incidents: incidents, drift: drift, health: healthScorer, healthRepo: healthRepo,
		reg: reg, sched: sched, reportGen: reportGen, startedAt: startedAt, log: log.With("component", "Handlers"),
	}
}

// GetHealth is a shallow liveness probe: it pings the database and nothing
// else, returning 503 the instant that dependency is unreachable.
func (h *Handlers) GetHealth(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		response.OK(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	response.OK(c, http.StatusOK, gin.H{"status": "ok", "uptimeSeconds": int(time.Since(h.startedAt).Seconds())})
}

// GetSystemHealth composes the full health report: latest score, safe-mode
// state, open incident summary, and latest drift score.
func (h *Handlers) GetSystemHealth(c *gin.Context) {
	ctx := c.Request.Context()

	latestHealth, err := h.healthRepo.Latest(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	safeModeState, err := h.health.SafeModeStatus(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	summary, err := h.incidents.GetIncidentSummary(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	drift, err := h.drift.Latest(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}

	body := gin.H{
		"health":         latestHealth,
		"safeMode":       safeModeState,
		"incidentSummary": summary,
		"driftScore":     drift,
	}
	response.OK(c, http.StatusOK, body)
}

// GetIncidents returns the open-incident summary plus up to 50 open
// incidents, ordered P1-first then newest-first by the repo query.
func (h *Handlers) GetIncidents(c *gin.Context) {
	ctx := c.Request.Context()
	summary, err := h.incidents.GetIncidentSummary(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	open, err := h.incidents.ListOpen(ctx, 50)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	response.OK(c, http.StatusOK, gin.H{"summary": summary, "open": open})
}

// GetInvariantsStatus returns the latest drift score and the last 24h of
// samples.
func (h *Handlers) GetInvariantsStatus(c *gin.Context) {
	ctx := c.Request.Context()
	latest, err := h.drift.Latest(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	history, err := h.drift.Last24h(ctx)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	score := 0
	if latest != nil {
		score = latest.Score
	}
	response.OK(c, http.StatusOK, gin.H{"driftScore": score, "last24h": history})
}

// GetCronStatus reports every registered job's run counters.
func (h *Handlers) GetCronStatus(c *gin.Context) {
	response.OK(c, http.StatusOK, h.sched.Stats())
}

// GetMetricsPrometheus writes the plain-text Prometheus exposition. Per the
// spec this endpoint is log-silent — no request logging middleware hook
// fires here beyond the standard accounting counters.
func (h *Handlers) GetMetricsPrometheus(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := h.reg.WritePrometheus(c.Writer); err != nil {
		h.log.Error("prometheus exposition write failed", "error", err)
	}
}

func (h *Handlers) GetMetricsJSON(c *gin.Context) {
	response.OK(c, http.StatusOK, h.reg.SnapshotJSON())
}

type enableSafeModeRequest struct {
	Reason    string `json:"reason"`
	EnabledBy string `json:"enabledBy"`
}

func (h *Handlers) PostSafeModeEnable(c *gin.Context) {
	var req enableSafeModeRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manually enabled"
	}
	enabled, err := h.health.EnableSafeMode(c.Request.Context(), req.Reason, req.EnabledBy)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	response.OK(c, http.StatusOK, gin.H{"success": enabled, "reason": req.Reason})
}

type disableSafeModeRequest struct {
	OverrideToken string `json:"overrideToken"`
}

func (h *Handlers) DeleteSafeModeDisable(c *gin.Context) {
	var req disableSafeModeRequest
	_ = c.ShouldBindJSON(&req)
	disabled, err := h.health.DisableSafeMode(c.Request.Context(), req.OverrideToken)
	if err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	response.OK(c, http.StatusOK, gin.H{"success": disabled})
}

func (h *Handlers) PostExecutiveReport(c *gin.Context) {
	if err := h.reportGen.RunCycle(c.Request.Context()); err != nil {
		response.Error(c, 500, "INTERNAL", err.Error())
		return
	}
	response.OK(c, http.StatusOK, gin.H{"triggered": true})
}
