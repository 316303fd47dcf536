package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type DriftScoreRepo interface {
	Insert(ctx context.Context, score int, components map[string]any) error
	Latest(ctx context.Context) (*models.DriftScore, error)
	Last24h(ctx context.Context) ([]models.DriftScore, error)
}

type driftScoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDriftScoreRepo(db *gorm.DB, baseLog *logger.Logger) DriftScoreRepo {
	return &driftScoreRepo{db: db, log: baseLog.With("repo", "DriftScoreRepo")}
}

func (r *driftScoreRepo) Insert(ctx context.Context, score int, components map[string]any) error {
	return r.db.WithContext(ctx).Create(&models.DriftScore{
		ID:         uuid.New(),
		Score:      score,
		Components: JSONMap(components),
		CreatedAt:  time.Now().UTC(),
	}).Error
}

func (r *driftScoreRepo) Latest(ctx context.Context) (*models.DriftScore, error) {
	var d models.DriftScore
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&d).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *driftScoreRepo) Last24h(ctx context.Context) ([]models.DriftScore, error) {
	var rows []models.DriftScore
	err := r.db.WithContext(ctx).
		Where("created_at > ?", time.Now().UTC().Add(-24*time.Hour)).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
