package security

import (
	"context"

	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const auditVerifyPrefixLimit = 5000

// AuditVerifyResult mirrors the contract {valid, brokenAt}.
type AuditVerifyResult struct {
	Valid    bool
	BrokenAt string
}

// AuditVerifier walks a bounded prefix of the audit chain checking that each
// row's prev_hash matches the previous row's row_hash, without recomputing
// any hash itself — only the storage layer that appends new rows does that.
type AuditVerifier struct {
	repo      repos.AuditChainRepo
	incidents *incident.Manager
	log       *logger.Logger
}

func NewAuditVerifier(repo repos.AuditChainRepo, incidents *incident.Manager, log *logger.Logger) *AuditVerifier {
	return &AuditVerifier{repo: repo, incidents: incidents, log: log.With("component", "AuditVerifier")}
}

func (v *AuditVerifier) Verify(ctx context.Context) (AuditVerifyResult, error) {
	rows, err := v.repo.ListOrdered(ctx, auditVerifyPrefixLimit)
	if err != nil {
		return AuditVerifyResult{}, err
	}

	expected := models.GenesisHash
	for _, row := range rows {
		if row.PrevHash != expected {
			v.log.Error("audit chain tamper detected", "brokenAt", row.ID, "expected", expected, "actual", row.PrevHash)
			_, err := v.incidents.CreateIncident(ctx, incident.CreateInput{
				Priority:      models.PriorityP1,
				Title:         "Audit log tamper detected",
				InvariantName: "AUDIT_LOG_TAMPER_DETECTED",
				Details: map[string]any{
					"brokenAt": row.ID.String(),
					"expected": expected,
					"actual":   row.PrevHash,
				},
			})
			if err != nil {
				v.log.Error("tamper incident creation failed", "error", err)
			}
			return AuditVerifyResult{Valid: false, BrokenAt: row.ID.String()}, nil
		}
		expected = row.RowHash
	}
	return AuditVerifyResult{Valid: true}, nil
}
