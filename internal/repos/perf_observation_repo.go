package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type PerfObservationRepo interface {
	Insert(ctx context.Context, obs *models.PerfObservation) error
	Recent(ctx context.Context, limit int) ([]models.PerfObservation, error)
}

type perfObservationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPerfObservationRepo(db *gorm.DB, baseLog *logger.Logger) PerfObservationRepo {
	return &perfObservationRepo{db: db, log: baseLog.With("repo", "PerfObservationRepo")}
}

func (r *perfObservationRepo) Insert(ctx context.Context, obs *models.PerfObservation) error {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(obs).Error
}

func (r *perfObservationRepo) Recent(ctx context.Context, limit int) ([]models.PerfObservation, error) {
	var rows []models.PerfObservation
	err := r.db.WithContext(ctx).Order("observed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
