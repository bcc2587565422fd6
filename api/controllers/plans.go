package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rflexhq/license-server/api/responses"
	"github.com/rflexhq/license-server/internal/plans"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/logger"
)

// PlanList returns the active plan catalog.
func PlanList(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		rows, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]planResponse, len(rows))
		for i, row := range rows {
			items[i] = planResponse{
				ID:             row.ID,
				Tier:           row.Tier.String(),
				Name:           row.Name,
				MaxActivations: row.MaxActivations,
				Unlimited:      row.Unlimited,
				ValidityDays:   row.ValidityDays,
				PricePerDevice: row.PricePerDevice,
				FeatureFlags:   []string(row.FeatureFlags),
				CreatedAt:      row.CreatedAt,
			}
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

type planResponse struct {
	ID             uuid.UUID       `json:"id"`
	Tier           string          `json:"tier"`
	Name           string          `json:"name"`
	MaxActivations uint32          `json:"max_activations"`
	Unlimited      bool            `json:"unlimited"`
	ValidityDays   int             `json:"validity_days"`
	PricePerDevice decimal.Decimal `json:"price_per_device"`
	FeatureFlags   []string        `json:"feature_flags"`
	CreatedAt      time.Time       `json:"created_at"`
}
