package repos

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type SafeModeRepo interface {
	Get(ctx context.Context) (*models.SafeModeState, error)
	// Enable is a no-op (returns false) if safe mode is already on — the
	// caller decides whether "already on" is worth logging.
	Enable(ctx context.Context, reason, enabledBy, overrideToken string) (bool, error)
	// Disable refuses (returns false, nil) if the supplied token doesn't
	// match the stored one.
	Disable(ctx context.Context, overrideToken string) (bool, error)
	RotateToken(ctx context.Context, newToken string) error
}

type safeModeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSafeModeRepo(db *gorm.DB, baseLog *logger.Logger) SafeModeRepo {
	return &safeModeRepo{db: db, log: baseLog.With("repo", "SafeModeRepo")}
}

func (r *safeModeRepo) ensureRow(tx *gorm.DB) (*models.SafeModeState, error) {
	var s models.SafeModeState
	err := tx.First(&s, "id = ?", models.SafeModeSingletonID).Error
	if err == gorm.ErrRecordNotFound {
		s = models.SafeModeState{ID: models.SafeModeSingletonID, UpdatedAt: time.Now().UTC()}
		if err := tx.Create(&s).Error; err != nil {
			return nil, err
		}
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *safeModeRepo) Get(ctx context.Context) (*models.SafeModeState, error) {
	var s *models.SafeModeState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := r.ensureRow(tx)
		s = row
		return err
	})
	return s, err
}

func (r *safeModeRepo) Enable(ctx context.Context, reason, enabledBy, overrideToken string) (bool, error) {
	enabled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := r.ensureRow(tx)
		if err != nil {
			return err
		}
		if s.SafeMode {
			return nil
		}
		now := time.Now().UTC()
		updates := map[string]any{
			"safe_mode":  true,
			"reason":     reason,
			"enabled_at": now,
			"enabled_by": enabledBy,
			"updated_at": now,
		}
		if overrideToken != "" {
			hashed, err := bcrypt.GenerateFromPassword([]byte(overrideToken), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			updates["override_token"] = string(hashed)
		}
		if err := tx.Model(&models.SafeModeState{}).Where("id = ?", models.SafeModeSingletonID).Updates(updates).Error; err != nil {
			return err
		}
		enabled = true
		return nil
	})
	return enabled, err
}

func (r *safeModeRepo) Disable(ctx context.Context, overrideToken string) (bool, error) {
	disabled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := r.ensureRow(tx)
		if err != nil {
			return err
		}
		if !s.SafeMode {
			return nil
		}
		if s.OverrideToken == "" || bcrypt.CompareHashAndPassword([]byte(s.OverrideToken), []byte(overrideToken)) != nil {
			return nil
		}
		if err := tx.Model(&models.SafeModeState{}).Where("id = ?", models.SafeModeSingletonID).Updates(map[string]any{
			"safe_mode":  false,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		disabled = true
		return nil
	})
	return disabled, err
}

func (r *safeModeRepo) RotateToken(ctx context.Context, newToken string) error {
	_, err := r.ensureRow(r.db.WithContext(ctx))
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newToken), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SafeModeState{}).
		Where("id = ?", models.SafeModeSingletonID).
		Updates(map[string]any{"override_token": string(hashed), "updated_at": time.Now().UTC()}).Error
}
