package validation

import (
	"context"
	"time"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db/models"
)

// LogRepository persists the validation audit trail.
type LogRepository struct {
	repo.Base
}

// NewLogRepository constructs a validation log repository.
func NewLogRepository(base repo.Base) *LogRepository {
	return &LogRepository{Base: base}
}

// Insert appends one audit row.
func (r *LogRepository) Insert(ctx context.Context, row *models.ValidationLog) error {
	return r.DB(ctx).Create(row).Error
}

// PurgeOlderThan deletes audit rows validated before the cutoff. Returns the
// number of rows removed; the sweep worker runs this on the retention window.
func (r *LogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("validated_at < ?", cutoff).Delete(&models.ValidationLog{})
	return res.RowsAffected, res.Error
}
