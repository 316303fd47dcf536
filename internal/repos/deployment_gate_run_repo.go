package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type DeploymentGateRunRepo interface {
	Insert(ctx context.Context, passed bool, gates, blockers map[string]any, triggeredBy string) error
	Latest(ctx context.Context) (*models.DeploymentGateRun, error)
}

type deploymentGateRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeploymentGateRunRepo(db *gorm.DB, baseLog *logger.Logger) DeploymentGateRunRepo {
	return &deploymentGateRunRepo{db: db, log: baseLog.With("repo", "DeploymentGateRunRepo")}
}

func (r *deploymentGateRunRepo) Insert(ctx context.Context, passed bool, gates, blockers map[string]any, triggeredBy string) error {
	return r.db.WithContext(ctx).Create(&models.DeploymentGateRun{
		ID:          uuid.New(),
		Passed:      passed,
		Gates:       JSONMap(gates),
		Blockers:    JSONMap(blockers),
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

func (r *deploymentGateRunRepo) Latest(ctx context.Context) (*models.DeploymentGateRun, error) {
	var run models.DeploymentGateRun
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
