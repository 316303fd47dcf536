package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type ExecutiveReportRepo interface {
	Upsert(ctx context.Context, periodDate time.Time, report map[string]any) (*models.ExecutiveReport, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
}

type executiveReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutiveReportRepo(db *gorm.DB, baseLog *logger.Logger) ExecutiveReportRepo {
	return &executiveReportRepo{db: db, log: baseLog.With("repo", "ExecutiveReportRepo")}
}

// Upsert is keyed by the unique periodDate: re-running the report job for
// the same day replaces the prior report rather than duplicating it.
func (r *executiveReportRepo) Upsert(ctx context.Context, periodDate time.Time, report map[string]any) (*models.ExecutiveReport, error) {
	day := periodDate.UTC().Truncate(24 * time.Hour)
	var existing models.ExecutiveReport
	err := r.db.WithContext(ctx).Where("period_date = ?", day).First(&existing).Error
	switch err {
	case nil:
		existing.Report = JSONMap(report)
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	case gorm.ErrRecordNotFound:
		rep := &models.ExecutiveReport{
			ID:         uuid.New(),
			PeriodDate: day,
			Report:     JSONMap(report),
		}
		if err := r.db.WithContext(ctx).Create(rep).Error; err != nil {
			return nil, err
		}
		return rep, nil
	default:
		return nil, err
	}
}

func (r *executiveReportRepo) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.ExecutiveReport{}).
		Where("id = ?", id).
		Updates(map[string]any{"dispatched": true, "dispatched_at": now}).Error
}
