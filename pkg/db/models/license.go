package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/pkg/types"
)

// License is the immutable record behind an issued license key. Everything
// covered by the signature is frozen at issuance; revocation lives in a
// separate table so rows are never rewritten to invalidate a key.
type License struct {
	ID             uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	ProductID      string          `gorm:"column:product_id;size:100;not null;index"`
	CustomerID     string          `gorm:"column:customer_id;size:100;not null;index"`
	PlanID         *uuid.UUID      `gorm:"column:plan_id;type:char(36)"`
	IssuedAt       time.Time       `gorm:"column:issued_at;not null"`
	ExpiresAt      *time.Time      `gorm:"column:expires_at"`
	MaxActivations uint32          `gorm:"column:max_activations;not null"`
	Unlimited      bool            `gorm:"column:unlimited;not null;default:false"`
	FeatureFlags   types.StringSet `gorm:"column:feature_flags;type:json"`
	SchemaVersion  uint8           `gorm:"column:schema_version;not null"`
	Signature      []byte          `gorm:"column:signature;type:varbinary(64);not null"`
	KeyDigest      string          `gorm:"column:key_digest;size:64;not null;uniqueIndex"`
	Notes          string          `gorm:"column:notes;type:text"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the license has passed its expiry at the given
// instant. Perpetual licenses never expire.
func (l *License) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}
