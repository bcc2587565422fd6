package licenses

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db/models"
)

// Repository exposes license persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a license repository tied to the provided GORM DB.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// Create inserts a new license row.
func (r *Repository) Create(ctx context.Context, license *models.License) (*models.License, error) {
	if err := r.DB(ctx).Create(license).Error; err != nil {
		return nil, err
	}
	return license, nil
}

// FindByID returns the license row for the given id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.DB(ctx).First(&license, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// UpdateRenewal rewrites the renewable fields after an administrative
// re-issue: the new expiry, the new signature and the new key digest.
func (r *Repository) UpdateRenewal(ctx context.Context, id uuid.UUID, expiresAt *time.Time, signature []byte, keyDigest string) error {
	return r.DB(ctx).Model(&models.License{}).Where("id = ?", id).Updates(map[string]any{
		"expires_at": expiresAt,
		"signature":  signature,
		"key_digest": keyDigest,
	}).Error
}

// List returns filtered licenses using cursor pagination.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.License, error) {
	query := r.DB(ctx).Model(&models.License{})
	if opts.customerID != "" {
		query = query.Where("customer_id = ?", opts.customerID)
	}
	if opts.productID != "" {
		query = query.Where("product_id = ?", opts.productID)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.License
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiringBefore returns licenses whose expiry falls inside (now, cutoff].
// The sweep worker uses it to flag soon-to-expire licenses.
func (r *Repository) ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]models.License, error) {
	var rows []models.License
	err := r.DB(ctx).
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", now, cutoff).
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
