package revocations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db/models"
)

// Repository exposes revocation registry persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a revocation repository tied to the provided GORM DB.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// Insert writes a revocation entry. Re-revoking is a no-op: the original
// entry (timestamp and reason) is preserved.
func (r *Repository) Insert(ctx context.Context, entry *models.RevocationEntry) (bool, error) {
	res := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByID returns the revocation entry for a license, if any.
func (r *Repository) FindByID(ctx context.Context, licenseID uuid.UUID) (*models.RevocationEntry, error) {
	var entry models.RevocationEntry
	if err := r.DB(ctx).First(&entry, "license_id = ?", licenseID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Exists reports whether a license has been revoked.
func (r *Repository) Exists(ctx context.Context, licenseID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.RevocationEntry{}).Where("license_id = ?", licenseID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
