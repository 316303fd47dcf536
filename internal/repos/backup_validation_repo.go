package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type BackupValidationRepo interface {
	Insert(ctx context.Context, bv *models.BackupValidation) error
	LatestPassed(ctx context.Context) (*models.BackupValidation, error)
}

type backupValidationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBackupValidationRepo(db *gorm.DB, baseLog *logger.Logger) BackupValidationRepo {
	return &backupValidationRepo{db: db, log: baseLog.With("repo", "BackupValidationRepo")}
}

func (r *backupValidationRepo) Insert(ctx context.Context, bv *models.BackupValidation) error {
	if bv.ID == uuid.Nil {
		bv.ID = uuid.New()
	}
	if bv.ValidatedAt.IsZero() {
		bv.ValidatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(bv).Error
}

func (r *backupValidationRepo) LatestPassed(ctx context.Context) (*models.BackupValidation, error) {
	var bv models.BackupValidation
	err := r.db.WithContext(ctx).
		Where("status = ?", models.BackupPassed).
		Order("validated_at DESC").
		First(&bv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &bv, nil
}
