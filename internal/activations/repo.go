package activations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db/models"
)

// Repository exposes activation ledger persistence operations. The mutating
// claim path goes through transaction-scoped helpers so the service can keep
// every step on the same locked connection.
type Repository struct {
	repo.Base
}

// NewRepository constructs an activation repository tied to the provided GORM DB.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// FindByLicenseAndDevice returns the activation row for the pair, if any.
func (r *Repository) FindByLicenseAndDevice(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*models.Activation, error) {
	return findByLicenseAndDevice(r.DB(ctx), licenseID, fingerprint)
}

// CountByLicense returns the number of seats currently consumed.
func (r *Repository) CountByLicense(ctx context.Context, licenseID uuid.UUID) (int64, error) {
	return countByLicense(r.DB(ctx), licenseID)
}

// ListByLicense returns every activation for a license, newest first.
func (r *Repository) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error) {
	var rows []models.Activation
	err := r.DB(ctx).Where("license_id = ?", licenseID).Order("activated_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TouchLastSeen bumps last_seen_at for an existing activation. Returns the
// number of rows updated.
func (r *Repository) TouchLastSeen(ctx context.Context, licenseID uuid.UUID, fingerprint string, at time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Activation{}).
		Where("license_id = ? AND device_fingerprint = ?", licenseID, fingerprint).
		Update("last_seen_at", at)
	return res.RowsAffected, res.Error
}

// Delete removes an activation row, freeing its seat. Returns the number of
// rows removed.
func (r *Repository) Delete(ctx context.Context, licenseID uuid.UUID, fingerprint string) (int64, error) {
	res := r.DB(ctx).
		Where("license_id = ? AND device_fingerprint = ?", licenseID, fingerprint).
		Delete(&models.Activation{})
	return res.RowsAffected, res.Error
}

func findByLicenseAndDevice(tx *gorm.DB, licenseID uuid.UUID, fingerprint string) (*models.Activation, error) {
	var row models.Activation
	err := tx.First(&row, "license_id = ? AND device_fingerprint = ?", licenseID, fingerprint).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func countByLicense(tx *gorm.DB, licenseID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.Activation{}).Where("license_id = ?", licenseID).Count(&count).Error
	return count, err
}
