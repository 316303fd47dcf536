// Package report generates the daily executive report: a rollup of drift,
// health and open incidents (no security activity), upserted once per day.
// Each run then sends a LOW "Daily executive report" alert through the
// alert transport and marks the report dispatched; the report body itself
// is not sent.
package report

import (
	"context"
	"time"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

type Generator struct {
	drift      repos.DriftScoreRepo
	health     repos.HealthScoreRepo
	incidents  *incident.Manager
	reportRepo repos.ExecutiveReportRepo
	alerts     *alert.Transport
	log        *logger.Logger
}

func NewGenerator(drift repos.DriftScoreRepo, health repos.HealthScoreRepo, incidents *incident.Manager, reportRepo repos.ExecutiveReportRepo, alerts *alert.Transport, log *logger.Logger) *Generator {
	return &Generator{drift: drift, health: health, incidents: incidents, reportRepo: reportRepo, alerts: alerts, log: log.With("component", "ExecutiveReportGenerator")}
}

func (g *Generator) RunCycle(ctx context.Context) error {
	driftHistory, err := g.drift.Last24h(ctx)
	if err != nil {
		g.log.Error("drift history fetch failed", "error", err)
	}
	latestHealth, err := g.health.Latest(ctx)
	if err != nil {
		g.log.Error("latest health fetch failed", "error", err)
	}
	summary, err := g.incidents.GetIncidentSummary(ctx)
	if err != nil {
		g.log.Error("incident summary fetch failed", "error", err)
	}

	avgDrift := averageDriftScore(driftHistory)
	body := map[string]any{
		"generatedAt":       time.Now().UTC().Format(time.RFC3339),
		"avgDriftScore24h":  avgDrift,
		"driftSampleCount":  len(driftHistory),
		"openIncidents":     summary.OpenByPriority,
	}
	if latestHealth != nil {
		body["healthScore"] = latestHealth.Score
		body["safeMode"] = latestHealth.SafeMode
	}

	rep, err := g.reportRepo.Upsert(ctx, time.Now().UTC(), body)
	if err != nil {
		return err
	}

	g.alerts.Send(ctx, alert.Payload{
		Severity: "LOW",
		Title:    "Daily executive report",
		Body:     "executive report generated",
	})
	return g.reportRepo.MarkDispatched(ctx, rep.ID)
}

func averageDriftScore(rows []models.DriftScore) float64 {
	if len(rows) == 0 {
		return 100
	}
	var sum int
	for _, r := range rows {
		sum += r.Score
	}
	return float64(sum) / float64(len(rows))
}
