// Package health implements the weighted health scorer and the safe-mode
// singleton it can auto-engage.
package health

import (
	"context"
	"math"
	"time"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const autoEngageReason = "Health score F — auto-engaged"

// Grade bands, evaluated top-down.
const (
	gradeAMin = 90
	gradeBMin = 75
	gradeCMin = 60
	gradeDMin = 40
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

func gradeFor(score int) Grade {
	switch {
	case score >= gradeAMin:
		return GradeA
	case score >= gradeBMin:
		return GradeB
	case score >= gradeCMin:
		return GradeC
	case score >= gradeDMin:
		return GradeD
	default:
		return GradeF
	}
}

// Scorer computes the weighted health score and drives safe-mode
// auto-engagement when the score falls below the F threshold.
type Scorer struct {
	driftRepo    repos.DriftScoreRepo
	incidentRepo repos.IncidentRepo
	backupRepo   repos.BackupValidationRepo
	business     repos.BusinessRepo
	healthRepo   repos.HealthScoreRepo
	safeMode     repos.SafeModeRepo
	incidents    *incident.Manager
	alerts       *alert.Transport
	reg          *metrics.Registry
	log          *logger.Logger
}

func NewScorer(
	driftRepo repos.DriftScoreRepo,
	incidentRepo repos.IncidentRepo,
	backupRepo repos.BackupValidationRepo,
	business repos.BusinessRepo,
	healthRepo repos.HealthScoreRepo,
	safeMode repos.SafeModeRepo,
	incidents *incident.Manager,
	alerts *alert.Transport,
	reg *metrics.Registry,
	log *logger.Logger,
) *Scorer {
	return &Scorer{
		driftRepo: driftRepo, incidentRepo: incidentRepo, backupRepo: backupRepo,
		business: business, healthRepo: healthRepo, safeMode: safeMode,
		incidents: incidents, alerts: alerts, reg: reg,
		log: log.With("component", "HealthScorer"),
	}
}

func (s *Scorer) RunCycle(ctx context.Context) (int, models.HealthComponents, error) {
	components := models.HealthComponents{}

	drift, err := s.driftRepo.Latest(ctx)
	if err != nil {
		s.log.Error("latest drift score fetch failed", "error", err)
	}
	driftScore := 100
	if drift != nil {
		driftScore = drift.Score
	}
	components.Integrity = int(math.Round(float64(driftScore) / 100 * 30))

	components.ErrorRate = errorRateComponent(s.reg.GaugeValue("http.error_rate"))
	components.Latency = latencyComponent(s.reg.GaugeValue("http.p95_latency_ms"))

	counts, err := s.incidentRepo.CountOpenByPriorities(ctx)
	if err != nil {
		s.log.Error("open incident counts fetch failed", "error", err)
		counts = map[models.Priority]int64{}
	}
	components.Incidents = incidentsComponent(counts)

	backup, err := s.backupRepo.LatestPassed(ctx)
	if err != nil {
		s.log.Error("latest backup validation fetch failed", "error", err)
	}
	components.Backup = backupComponent(backup)

	pending, err := s.business.PendingMigrationsCount(ctx)
	if err != nil {
		s.log.Error("pending migrations count failed", "error", err)
		components.Migrations = 3
	} else if pending == 0 {
		components.Migrations = 5
	}

	total := components.Integrity + components.ErrorRate + components.Latency +
		components.Incidents + components.Backup + components.Migrations
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	grade := gradeFor(total)
	safeModeState, err := s.safeMode.Get(ctx)
	if err != nil {
		s.log.Error("safe mode state fetch failed", "error", err)
	}
	currentlyEnabled := safeModeState != nil && safeModeState.SafeMode

	if err := s.healthRepo.Insert(ctx, total, components, currentlyEnabled); err != nil {
		s.log.Error("health score persist failed", "error", err)
	}
	s.reg.Set("health.score", float64(total))

	if err := s.reactToGrade(ctx, total, grade, currentlyEnabled); err != nil {
		return total, components, err
	}
	return total, components, nil
}

func (s *Scorer) reactToGrade(ctx context.Context, score int, grade Grade, currentlyEnabled bool) error {
	if grade != GradeF {
		if score >= 40 && score < 50 {
			s.alerts.Send(ctx, alert.Payload{
				Severity:    "CRITICAL",
				Title:       "Health score critical",
				Body:        "health score in the 40-49 band",
				Metric:      "health.score",
				ActualValue: float64(score),
			})
		}
		return nil
	}
	if currentlyEnabled {
		return nil
	}
	enabled, err := s.safeMode.Enable(ctx, autoEngageReason, "health-scorer", "")
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	s.alerts.Send(ctx, alert.Payload{
		Severity: "CRITICAL",
		Title:    "Safe mode auto-engaged",
		Body:     autoEngageReason,
	})
	_, err = s.incidents.CreateIncident(ctx, incident.CreateInput{
		Priority:      models.PriorityP1,
		Title:         "Safe mode auto-engaged",
		InvariantName: "HEALTH_SCORE_F",
		Details:       map[string]any{"score": score},
	})
	return err
}

func errorRateComponent(errorRatePct float64) int {
	switch {
	case errorRatePct == 0:
		return 20
	case errorRatePct < 0.5:
		return 18
	case errorRatePct < 1:
		return 15
	case errorRatePct < 3:
		return 10
	case errorRatePct < 5:
		return 5
	default:
		return 0
	}
}

func latencyComponent(p95Ms float64) int {
	switch {
	case p95Ms == 0 || p95Ms < 100:
		return 15
	case p95Ms < 200:
		return 12
	case p95Ms < 500:
		return 8
	case p95Ms < 1000:
		return 4
	default:
		return 0
	}
}

func incidentsComponent(counts map[models.Priority]int64) int {
	score := 20 - 10*int(counts[models.PriorityP1]) - 5*int(counts[models.PriorityP2]) -
		2*int(counts[models.PriorityP3]) - 1*int(counts[models.PriorityP4])
	if score < 0 {
		return 0
	}
	return score
}

// SafeModeStatus is the read-facing view of the singleton state.
func (s *Scorer) SafeModeStatus(ctx context.Context) (*models.SafeModeState, error) {
	return s.safeMode.Get(ctx)
}

// EnableSafeMode is a no-op (returns false, nil) if safe mode is already on.
func (s *Scorer) EnableSafeMode(ctx context.Context, reason, enabledBy string) (bool, error) {
	return s.safeMode.Enable(ctx, reason, enabledBy, "")
}

// DisableSafeMode refuses (returns false, nil) if overrideToken doesn't
// match the stored token.
func (s *Scorer) DisableSafeMode(ctx context.Context, overrideToken string) (bool, error) {
	return s.safeMode.Disable(ctx, overrideToken)
}

// RotateOverrideToken is an administrative action; it does not require the
// old token.
func (s *Scorer) RotateOverrideToken(ctx context.Context, newToken string) error {
	return s.safeMode.RotateToken(ctx, newToken)
}

func backupComponent(bv *models.BackupValidation) int {
	if bv == nil {
		return 0
	}
	age := time.Since(bv.ValidatedAt)
	switch {
	case age < 12*time.Hour:
		return 10
	case age < 24*time.Hour:
		return 7
	case age < 48*time.Hour:
		return 3
	default:
		return 0
	}
}
