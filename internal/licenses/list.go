package licenses

import (
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/pkg/db/models"
	pkgpagination "github.com/rflexhq/license-server/pkg/pagination"
	"github.com/rflexhq/license-server/pkg/types"
)

type ListParams struct {
	CustomerID string
	ProductID  string
	pkgpagination.Params
}

type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      string          `json:"product_id"`
	CustomerID     string          `json:"customer_id"`
	PlanID         *uuid.UUID      `json:"plan_id,omitempty"`
	IssuedAt       time.Time       `json:"issued_at"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	MaxActivations uint32          `json:"max_activations"`
	Unlimited      bool            `json:"unlimited"`
	FeatureFlags   types.StringSet `json:"feature_flags"`
	SchemaVersion  uint8           `json:"schema_version"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type listQuery struct {
	customerID string
	productID  string
	limit      int
	cursor     *pkgpagination.Cursor
}

func toListItem(m models.License) ListItem {
	return ListItem{
		ID:             m.ID,
		ProductID:      m.ProductID,
		CustomerID:     m.CustomerID,
		PlanID:         m.PlanID,
		IssuedAt:       m.IssuedAt,
		ExpiresAt:      m.ExpiresAt,
		MaxActivations: m.MaxActivations,
		Unlimited:      m.Unlimited,
		FeatureFlags:   m.FeatureFlags,
		SchemaVersion:  m.SchemaVersion,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
