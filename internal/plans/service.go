// Package plans serves the plan catalog that issuance policies draw from.
package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
)

type plansRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	FindByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error)
	ListActive(ctx context.Context) ([]models.Plan, error)
}

// Service exposes read access to the plan catalog.
type Service interface {
	GetByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	List(ctx context.Context) ([]models.Plan, error)
}

type service struct {
	repo plansRepository
}

// NewService builds a plan service backed by the provided repository.
func NewService(repo plansRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error) {
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan tier")
	}
	plan, err := s.repo.FindByTier(ctx, tier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan")
	}
	return plan, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan")
	}
	return plan, nil
}

func (s *service) List(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return rows, nil
}
