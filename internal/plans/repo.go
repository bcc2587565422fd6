package plans

import (
	"context"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
)

// Repository exposes plan catalog persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a plan repository tied to the provided GORM DB.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// FindByID returns the plan row for the given id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.DB(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByTier returns the active plan for a tier.
func (r *Repository) FindByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error) {
	var plan models.Plan
	if err := r.DB(ctx).First(&plan, "tier = ? AND active = ?", tier, true).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActive returns every active plan ordered by tier.
func (r *Repository) ListActive(ctx context.Context) ([]models.Plan, error) {
	var rows []models.Plan
	if err := r.DB(ctx).Where("active = ?", true).Order("tier ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
