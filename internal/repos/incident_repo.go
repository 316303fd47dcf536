package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type IncidentRepo interface {
	Create(ctx context.Context, inc *models.Incident) error
	Get(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	FindOpenByInvariant(ctx context.Context, invariantName string) (*models.Incident, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CountOpenByPriority(ctx context.Context, priority models.Priority) (int64, error)
	CountOpenByPriorities(ctx context.Context) (map[models.Priority]int64, error)
	ListOpen(ctx context.Context, limit int) ([]models.Incident, error)
}

type incidentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIncidentRepo(db *gorm.DB, baseLog *logger.Logger) IncidentRepo {
	return &incidentRepo{db: db, log: baseLog.With("repo", "IncidentRepo")}
}

func (r *incidentRepo) Create(ctx context.Context, inc *models.Incident) error {
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	now := time.Now().UTC()
	inc.CreatedAt, inc.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(inc).Error
}

func (r *incidentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var inc models.Incident
	if err := r.db.WithContext(ctx).First(&inc, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inc, nil
}

// FindOpenByInvariant returns the most recent OPEN or AUTO_HEALING incident
// for an invariant, used to decide between create vs. update.
func (r *incidentRepo) FindOpenByInvariant(ctx context.Context, invariantName string) (*models.Incident, error) {
	var inc models.Incident
	err := r.db.WithContext(ctx).
		Where("invariant_name = ? AND status IN ?", invariantName, []models.IncidentStatus{models.IncidentOpen, models.IncidentAutoHealing}).
		Order("created_at DESC").
		First(&inc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inc, nil
}

func (r *incidentRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.Incident{}).Where("id = ?", id).Updates(updates).Error
}

func (r *incidentRepo) CountOpenByPriority(ctx context.Context, priority models.Priority) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Incident{}).
		Where("priority = ? AND status IN ?", priority, []models.IncidentStatus{models.IncidentOpen, models.IncidentAutoHealing, models.IncidentEscalated}).
		Count(&count).Error
	return count, err
}

func (r *incidentRepo) CountOpenByPriorities(ctx context.Context) (map[models.Priority]int64, error) {
	out := map[models.Priority]int64{}
	for _, p := range []models.Priority{models.PriorityP1, models.PriorityP2, models.PriorityP3, models.PriorityP4} {
		n, err := r.CountOpenByPriority(ctx, p)
		if err != nil {
			return nil, err
		}
		out[p] = n
	}
	return out, nil
}

func (r *incidentRepo) ListOpen(ctx context.Context, limit int) ([]models.Incident, error) {
	var incidents []models.Incident
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.IncidentStatus{models.IncidentResolved, models.IncidentClosed}).
		Order("priority ASC, created_at DESC").
		Limit(limit).
		Find(&incidents).Error
	return incidents, err
}

// JSONMap is a convenience alias repos use when building opaque detail bags.
type JSONMap = datatypes.JSONMap
