package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rflexhq/license-server/pkg/enums"
	"github.com/rflexhq/license-server/pkg/types"
)

// Plan is an issuance policy template: seat limit, validity window, feature
// set, per-device pricing.
type Plan struct {
	ID             uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	Tier           enums.PlanTier  `gorm:"column:tier;size:20;not null;uniqueIndex"`
	Name           string          `gorm:"column:name;size:100;not null"`
	MaxActivations uint32          `gorm:"column:max_activations;not null"`
	Unlimited      bool            `gorm:"column:unlimited;not null;default:false"`
	ValidityDays   int             `gorm:"column:validity_days;not null"`
	PricePerDevice decimal.Decimal `gorm:"column:price_per_device;type:decimal(10,2);not null"`
	FeatureFlags   types.StringSet `gorm:"column:feature_flags;type:json"`
	Active         bool            `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
