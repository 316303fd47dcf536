package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

// MaxViolationsPerCycle caps persistence across one whole engine cycle
// (every invariant's violations combined), not per invariant; the engine
// is a surveillance mechanism, not a bulk audit log. The engine applies
// this cap itself before calling InsertBatch once per cycle — the
// re-check here is a backstop for any other caller.
const MaxViolationsPerCycle = 100

type InvariantViolationRepo interface {
	InsertBatch(ctx context.Context, rows []models.InvariantViolation) error
}

type invariantViolationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInvariantViolationRepo(db *gorm.DB, baseLog *logger.Logger) InvariantViolationRepo {
	return &invariantViolationRepo{db: db, log: baseLog.With("repo", "InvariantViolationRepo")}
}

func (r *invariantViolationRepo) InsertBatch(ctx context.Context, rows []models.InvariantViolation) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) > MaxViolationsPerCycle {
		rows = rows[:MaxViolationsPerCycle]
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}
