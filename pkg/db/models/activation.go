package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/pkg/types"
)

// Activation binds a license to one device fingerprint, consuming a seat.
// The (license_id, device_fingerprint) pair is unique; rows are removed only
// by explicit administrative deactivation.
type Activation struct {
	ID                uuid.UUID      `gorm:"column:id;type:char(36);primaryKey"`
	LicenseID         uuid.UUID      `gorm:"column:license_id;type:char(36);not null;uniqueIndex:idx_activations_license_device"`
	DeviceFingerprint string         `gorm:"column:device_fingerprint;size:128;not null;uniqueIndex:idx_activations_license_device"`
	DeviceName        string         `gorm:"column:device_name;size:255"`
	DeviceModel       string         `gorm:"column:device_model;size:100"`
	AppVersion        string         `gorm:"column:app_version;size:20"`
	HardwareInfo      types.JSONMap  `gorm:"column:hardware_info;type:json"`
	ActivatedAt       time.Time      `gorm:"column:activated_at;not null"`
	LastSeenAt        time.Time      `gorm:"column:last_seen_at;not null"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
