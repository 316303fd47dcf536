// Package backupcheck runs the scheduled backup validation job: restore the
// latest dump into a shadow database, verify its checksum, and run a drift
// check against it, persisting a terminal PASSED/FAILED row.
package backupcheck

import (
	"context"
	"fmt"

	"github.com/retailops/controlplane/internal/alert"
	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

// ProbeResult is what the injected prober reports about the latest backup
// artifact; the validator never touches the filesystem or a shadow
// database connection itself.
type ProbeResult struct {
	BackupFile    string
	SizeKB        int64
	Checksum      string
	RestoreTested bool
	DriftClean    bool
}

// Prober restores the latest backup into the shadow database (config's
// ShadowDBURL) and reports what it found. Injected so the validator stays
// testable without a real restore target.
type Prober func(ctx context.Context) (ProbeResult, error)

type Validator struct {
	prober    Prober
	repo      repos.BackupValidationRepo
	incidents *incident.Manager
	alerts    *alert.Transport
	log       *logger.Logger
}

func NewValidator(prober Prober, repo repos.BackupValidationRepo, incidents *incident.Manager, alerts *alert.Transport, log *logger.Logger) *Validator {
	return &Validator{prober: prober, repo: repo, incidents: incidents, alerts: alerts, log: log.With("component", "BackupValidator")}
}

func (v *Validator) RunCycle(ctx context.Context) error {
	if v.prober == nil {
		v.log.Warn("no backup prober configured, skipping cycle")
		return nil
	}
	result, err := v.prober(ctx)
	if err != nil {
		return v.fail(ctx, ProbeResult{}, fmt.Sprintf("probe failed: %v", err))
	}
	if !result.RestoreTested {
		return v.fail(ctx, result, "restore was not performed")
	}
	if !result.DriftClean {
		return v.fail(ctx, result, "restored database failed drift check")
	}

	bv := &models.BackupValidation{
		BackupFile:    result.BackupFile,
		SizeKB:        result.SizeKB,
		Checksum:      result.Checksum,
		RestoreTested: result.RestoreTested,
		DriftClean:    result.DriftClean,
		Status:        models.BackupPassed,
	}
	return v.repo.Insert(ctx, bv)
}

func (v *Validator) fail(ctx context.Context, result ProbeResult, reason string) error {
	bv := &models.BackupValidation{
		BackupFile:    result.BackupFile,
		SizeKB:        result.SizeKB,
		Checksum:      result.Checksum,
		RestoreTested: result.RestoreTested,
		DriftClean:    result.DriftClean,
		Status:        models.BackupFailed,
	}
	incidentID, incErr := v.incidents.CreateIncident(ctx, incident.CreateInput{
		Priority:      models.PriorityP1,
		Title:         "Backup validation failed",
		InvariantName: "BACKUP_VALIDATION_FAILED",
		Details:       map[string]any{"reason": reason},
	})
	if incErr != nil {
		v.log.Error("backup failure incident creation failed", "error", incErr)
	} else {
		bv.IncidentID = &incidentID
	}
	v.alerts.Send(ctx, alert.Payload{
		Severity: "HIGH",
		Title:    "Backup validation failed",
		Body:     reason,
	})
	if err := v.repo.Insert(ctx, bv); err != nil {
		v.log.Error("backup validation persist failed", "error", err)
		return err
	}
	return nil
}
