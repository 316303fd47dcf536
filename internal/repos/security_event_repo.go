package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type SecurityEventRepo interface {
	Create(ctx context.Context, ev *models.SecurityEvent) error
	CountByTypeSince(ctx context.Context, eventType string, since time.Time) (int64, error)
}

type securityEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSecurityEventRepo(db *gorm.DB, baseLog *logger.Logger) SecurityEventRepo {
	return &securityEventRepo{db: db, log: baseLog.With("repo", "SecurityEventRepo")}
}

func (r *securityEventRepo) Create(ctx context.Context, ev *models.SecurityEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *securityEventRepo) CountByTypeSince(ctx context.Context, eventType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Where("event_type = ? AND created_at > ?", eventType, since).
		Count(&count).Error
	return count, err
}
