package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type SecurityBlockRepo interface {
	Upsert(ctx context.Context, target string, targetType models.TargetType, reason string, expiresAt time.Time) error
	IsBlocked(ctx context.Context, target string) (bool, error)
	Lift(ctx context.Context, target, liftedBy string) error
}

type securityBlockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSecurityBlockRepo(db *gorm.DB, baseLog *logger.Logger) SecurityBlockRepo {
	return &securityBlockRepo{db: db, log: baseLog.With("repo", "SecurityBlockRepo")}
}

// Upsert re-arms an existing block row for the same target rather than
// accumulating duplicates — a repeat offender's clock resets, it doesn't
// stack.
func (r *securityBlockRepo) Upsert(ctx context.Context, target string, targetType models.TargetType, reason string, expiresAt time.Time) error {
	block := &models.SecurityBlock{
		ID:         uuid.New(),
		Target:     target,
		TargetType: targetType,
		Reason:     reason,
		BlockedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "blocked_at", "expires_at", "lifted_at", "lifted_by"}),
	}).Create(block).Error
}

func (r *securityBlockRepo) IsBlocked(ctx context.Context, target string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SecurityBlock{}).
		Where("target = ? AND lifted_at IS NULL AND expires_at > ?", target, time.Now().UTC()).
		Count(&count).Error
	return count > 0, err
}

func (r *securityBlockRepo) Lift(ctx context.Context, target, liftedBy string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.SecurityBlock{}).
		Where("target = ?", target).
		Updates(map[string]any{"lifted_at": now, "lifted_by": liftedBy}).Error
}
