package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/pkg/enums"
)

// ValidationLog records one validation decision for audit and metrics.
type ValidationLog struct {
	ID                uuid.UUID               `gorm:"column:id;type:char(36);primaryKey"`
	LicenseID         *uuid.UUID              `gorm:"column:license_id;type:char(36);index"`
	DeviceFingerprint string                  `gorm:"column:device_fingerprint;size:128"`
	Outcome           enums.ValidationOutcome `gorm:"column:outcome;size:20;not null"`
	Reason            string                  `gorm:"column:reason;size:40"`
	IPAddress         string                  `gorm:"column:ip_address;size:45"`
	UserAgent         string                  `gorm:"column:user_agent;size:500"`
	Offline           bool                    `gorm:"column:offline;not null;default:false"`
	ValidatedAt       time.Time               `gorm:"column:validated_at;not null;index"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}
