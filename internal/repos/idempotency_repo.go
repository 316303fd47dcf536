package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type IdempotencyRepo interface {
	// TryInsertLocked attempts the initial locked insert; ok=false means the
	// insert lost the race (a row already exists) and the caller restarts
	// its lookup.
	TryInsertLocked(ctx context.Context, key string, ttl time.Duration) (ok bool, err error)
	GetLive(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type idempotencyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdempotencyRepo(db *gorm.DB, baseLog *logger.Logger) IdempotencyRepo {
	return &idempotencyRepo{db: db, log: baseLog.With("repo", "IdempotencyRepo")}
}

func (r *idempotencyRepo) TryInsertLocked(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	rec := models.IdempotencyRecord{
		ID:        key,
		Locked:    true,
		LockedAt:  &now,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	res := r.db.WithContext(ctx).Clauses(onConflictDoNothing("id")).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *idempotencyRepo) GetLive(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", key, time.Now().UTC()).
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepo) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	return r.db.WithContext(ctx).Model(&models.IdempotencyRecord{}).
		Where("id = ?", key).
		Updates(map[string]any{
			"response_body": body,
			"status_code":   statusCode,
			"locked":        false,
		}).Error
}

func (r *idempotencyRepo) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&models.IdempotencyRecord{}, "id = ?", key).Error
}

func (r *idempotencyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.IdempotencyRecord{}, "expires_at < ?", time.Now().UTC())
	return res.RowsAffected, res.Error
}
