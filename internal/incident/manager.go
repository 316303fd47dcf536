// Package incident implements the process-wide incident manager: the
// priority-classed state machine described in the component design, with
// forensic capture on creation and auto-heal escalation.
package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/invariant/types"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const (
	escalateAfterAttempts = 3
	escalateAfterAge      = 15 * time.Minute
)

// Manager owns the incident state machine. Construct one per process and
// inject it everywhere an incident needs opening — this replaces the
// original's module-level singleton with ordinary dependency injection.
type Manager struct {
	repo      repos.IncidentRepo
	forensic  repos.ForensicRepo
	alerts    *alert.Transport
	log       *logger.Logger
	startedAt time.Time
}

func NewManager(repo repos.IncidentRepo, forensic repos.ForensicRepo, alerts *alert.Transport, log *logger.Logger, startedAt time.Time) *Manager {
	return &Manager{repo: repo, forensic: forensic, alerts: alerts, log: log.With("component", "IncidentManager"), startedAt: startedAt}
}

type CreateInput struct {
	Priority      models.Priority
	Title         string
	InvariantName string
	Details       map[string]any
}

func severityFor(p models.Priority) string {
	switch p {
	case models.PriorityP1:
		return "CRITICAL"
	case models.PriorityP2:
		return "HIGH"
	case models.PriorityP3:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// CreateIncident always captures a forensic snapshot before persisting.
func (m *Manager) CreateIncident(ctx context.Context, in CreateInput) (uuid.UUID, error) {
	forensic := m.forensic.Snapshot(ctx, m.startedAt)
	inc := &models.Incident{
		ID:            uuid.New(),
		Priority:      in.Priority,
		Status:        models.IncidentOpen,
		Title:         in.Title,
		InvariantName: in.InvariantName,
		Details:       toJSONMap(in.Details),
		Forensic:      toJSONMap(forensic),
	}
	if err := m.repo.Create(ctx, inc); err != nil {
		return uuid.Nil, fmt.Errorf("create incident: %w", err)
	}
	m.alerts.Send(ctx, alert.Payload{
		Severity: severityFor(in.Priority),
		Title:    in.Title,
		Body:     fmt.Sprintf("incident %s opened (priority=%s)", inc.ID, in.Priority),
	})
	return inc.ID, nil
}

// CreateOrUpdateFromInvariant implements the recur/clear decision: an
// existing OPEN/AUTO_HEALING incident for the same invariant either
// auto-resolves (result passed and was auto-corrected) or absorbs another
// heal attempt; otherwise a failing result opens a fresh incident.
func (m *Manager) CreateOrUpdateFromInvariant(ctx context.Context, result types.Result, priority models.Priority) error {
	existing, err := m.repo.FindOpenByInvariant(ctx, result.Name)
	if err != nil {
		return fmt.Errorf("find open incident for invariant: %w", err)
	}
	if existing != nil {
		if result.Passed && result.AutoCorrected {
			return m.AutoResolve(ctx, existing.ID, "invariant auto-corrected and passed")
		}
		return m.IncrementHealAttempts(ctx, existing.ID, result)
	}
	if !result.Passed {
		_, err := m.CreateIncident(ctx, CreateInput{
			Priority:      priority,
			Title:         "Invariant violation: " + result.Name,
			InvariantName: result.Name,
			Details:       map[string]any{"violationCount": len(result.Violations)},
		})
		return err
	}
	return nil
}

// IncrementHealAttempts bumps the attempt counter, moves the incident into
// AUTO_HEALING, and escalates once the attempt/age thresholds are crossed.
func (m *Manager) IncrementHealAttempts(ctx context.Context, id uuid.UUID, result types.Result) error {
	inc, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inc == nil {
		return nil
	}
	attempts := inc.AutoHealAttempts + 1
	details := map[string]any{"violationCount": len(result.Violations)}
	if err := m.repo.Update(ctx, id, map[string]any{
		"auto_heal_attempts": attempts,
		"status":             models.IncidentAutoHealing,
		"details":            toJSONMap(details),
	}); err != nil {
		return err
	}
	if attempts >= escalateAfterAttempts || time.Since(inc.CreatedAt) > escalateAfterAge {
		return m.Escalate(ctx, id, "auto-heal attempts or age threshold exceeded")
	}
	return nil
}

// Escalate is an idempotent OPEN|AUTO_HEALING -> ESCALATED transition; the
// first call wins and never downgrades a terminal state.
func (m *Manager) Escalate(ctx context.Context, id uuid.UUID, reason string) error {
	inc, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inc == nil || inc.Status == models.IncidentEscalated || isTerminal(inc.Status) {
		return nil
	}
	now := time.Now().UTC()
	if err := m.repo.Update(ctx, id, map[string]any{
		"status":       models.IncidentEscalated,
		"escalated_at": now,
	}); err != nil {
		return err
	}
	m.alerts.Send(ctx, alert.Payload{
		Severity: severityFor(inc.Priority),
		Title:    "Incident escalated: " + inc.Title,
		Body:     reason,
	})
	return nil
}

// AutoResolve is a no-op on an already-terminal incident.
func (m *Manager) AutoResolve(ctx context.Context, id uuid.UUID, reason string) error {
	inc, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inc == nil || isTerminal(inc.Status) {
		return nil
	}
	now := time.Now().UTC()
	return m.repo.Update(ctx, id, map[string]any{
		"status":          models.IncidentResolved,
		"resolved_at":     now,
		"auto_healed":     true,
		"resolved_reason": reason,
	})
}

func isTerminal(s models.IncidentStatus) bool {
	return s == models.IncidentResolved || s == models.IncidentClosed
}

func (m *Manager) GetOpenP1Count(ctx context.Context) (int64, error) {
	return m.repo.CountOpenByPriority(ctx, models.PriorityP1)
}

type Summary struct {
	OpenByPriority map[models.Priority]int64 `json:"openByPriority"`
}

func (m *Manager) GetIncidentSummary(ctx context.Context) (Summary, error) {
	counts, err := m.repo.CountOpenByPriorities(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{OpenByPriority: counts}, nil
}

func (m *Manager) ListOpen(ctx context.Context, limit int) ([]models.Incident, error) {
	return m.repo.ListOpen(ctx, limit)
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	return datatypes.JSONMap(m)
}
