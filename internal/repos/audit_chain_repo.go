package repos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type AuditChainRepo interface {
	// Append computes the new row's hash from the current chain tail and
	// inserts it; the caller never supplies row/prev hashes directly.
	Append(ctx context.Context, action, entityType, entityID string) (*models.AuditChainEntry, error)
	ListOrdered(ctx context.Context, limit int) ([]models.AuditChainEntry, error)
}

type auditChainRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditChainRepo(db *gorm.DB, baseLog *logger.Logger) AuditChainRepo {
	return &auditChainRepo{db: db, log: baseLog.With("repo", "AuditChainRepo")}
}

// Append takes a transaction-scoped advisory lock before reading the tail,
// so concurrent appends run one at a time and two of them cannot compute
// their hash from the same stale tail.
func (r *auditChainRepo) Append(ctx context.Context, action, entityType, entityID string) (*models.AuditChainEntry, error) {
	var entry *models.AuditChainEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext('audit_chain_append'))").Error; err != nil {
			return err
		}
		var tail models.AuditChainEntry
		prevHash := models.GenesisHash
		err := tx.Order("created_at DESC").First(&tail).Error
		if err == nil {
			prevHash = tail.RowHash
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		now := time.Now().UTC()
		id := uuid.New()
		rowHash := computeRowHash(prevHash, id, action, entityType, entityID, now)
		entry = &models.AuditChainEntry{
			ID:         id,
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			RowHash:    rowHash,
			PrevHash:   prevHash,
			CreatedAt:  now,
		}
		return tx.Create(entry).Error
	})
	return entry, err
}

func computeRowHash(prevHash string, id uuid.UUID, action, entityType, entityID string, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(id.String()))
	h.Write([]byte(action))
	h.Write([]byte(entityType))
	h.Write([]byte(entityID))
	h.Write([]byte(createdAt.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

func (r *auditChainRepo) ListOrdered(ctx context.Context, limit int) ([]models.AuditChainEntry, error) {
	var rows []models.AuditChainEntry
	err := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
