package models

import (
	"time"

	"github.com/google/uuid"
)

// RevocationEntry marks a license as permanently invalid. Presence of a row
// is the whole signal; entries are never updated or deleted.
type RevocationEntry struct {
	LicenseID uuid.UUID `gorm:"column:license_id;type:char(36);primaryKey"`
	RevokedAt time.Time `gorm:"column:revoked_at;not null"`
	Reason    string    `gorm:"column:reason;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
