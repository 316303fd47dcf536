package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type HealthScoreRepo interface {
	Insert(ctx context.Context, score int, components models.HealthComponents, safeMode bool) error
	Latest(ctx context.Context) (*models.HealthScore, error)
}

type healthScoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHealthScoreRepo(db *gorm.DB, baseLog *logger.Logger) HealthScoreRepo {
	return &healthScoreRepo{db: db, log: baseLog.With("repo", "HealthScoreRepo")}
}

func (r *healthScoreRepo) Insert(ctx context.Context, score int, components models.HealthComponents, safeMode bool) error {
	comp := map[string]any{
		"integrity":  components.Integrity,
		"errorRate":  components.ErrorRate,
		"latency":    components.Latency,
		"incidents":  components.Incidents,
		"backup":     components.Backup,
		"migrations": components.Migrations,
	}
	return r.db.WithContext(ctx).Create(&models.HealthScore{
		ID:         uuid.New(),
		Score:      score,
		Components: JSONMap(comp),
		SafeMode:   safeMode,
		RecordedAt: time.Now().UTC(),
	}).Error
}

func (r *healthScoreRepo) Latest(ctx context.Context) (*models.HealthScore, error) {
	var h models.HealthScore
	err := r.db.WithContext(ctx).Order("recorded_at DESC").First(&h).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}
