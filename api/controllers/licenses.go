package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rflexhq/license-server/api/responses"
	"github.com/rflexhq/license-server/api/validators"
	"github.com/rflexhq/license-server/internal/licenses"
	"github.com/rflexhq/license-server/internal/revocations"
	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/pagination"
)

type licenseIssueRequest struct {
	ProductID    string     `json:"product_id" validate:"required,max=100"`
	CustomerID   string     `json:"customer_id" validate:"required,max=100"`
	PlanTier     string     `json:"plan_tier"`
	SeatCount    uint32     `json:"seat_count"`
	Unlimited    bool       `json:"unlimited"`
	ExpiresAt    *time.Time `json:"expires_at"`
	FeatureFlags []string   `json:"feature_flags"`
	Notes        string     `json:"notes"`
}

func (r licenseIssueRequest) toInput() (licenses.IssueInput, error) {
	input := licenses.IssueInput{
		ProductID:    r.ProductID,
		CustomerID:   r.CustomerID,
		SeatCount:    r.SeatCount,
		Unlimited:    r.Unlimited,
		ExpiresAt:    r.ExpiresAt,
		FeatureFlags: r.FeatureFlags,
		Notes:        r.Notes,
	}
	if tier := strings.TrimSpace(r.PlanTier); tier != "" {
		parsed, err := enums.ParsePlanTier(tier)
		if err != nil {
			return licenses.IssueInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan tier")
		}
		input.PlanTier = parsed
	}
	return input, nil
}

// LicenseIssue mints a new signed license key.
func LicenseIssue(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload licenseIssueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Issue(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, issueResponseFromResult(result))
	}
}

// LicenseDetail returns one license row by id. The key itself is never
// recoverable from this endpoint; only its digest is stored.
func LicenseDetail(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := licenseIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseResponseFromModel(row))
	}
}

// LicenseList pages through issued licenses, optionally filtered by customer
// or product.
func LicenseList(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := licenses.ListParams{
			CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
			ProductID:  strings.TrimSpace(r.URL.Query().Get("product_id")),
		}
		params.Limit = limit
		params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type licenseRenewRequest struct {
	Days int `json:"days" validate:"required,min=1,max=3650"`
}

// LicenseRenew extends an expiring license and re-issues its key.
func LicenseRenew(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := licenseIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseRenewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Renew(r.Context(), id, payload.Days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, issueResponseFromResult(result))
	}
}

type licenseRevokeRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type revokeResponse struct {
	LicenseID uuid.UUID `json:"license_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

// LicenseRevoke permanently invalidates a license. Safe to repeat; a second
// call reports the original revocation.
func LicenseRevoke(svc revocations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "revocation service unavailable"))
			return
		}

		id, err := licenseIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseRevokeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, entry, err := svc.Revoke(r.Context(), id, strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := "revoked"
		if outcome == revocations.AlreadyRevoked {
			status = "already_revoked"
		}
		responses.WriteSuccess(w, revokeResponse{
			LicenseID: entry.LicenseID,
			Status:    status,
			Reason:    entry.Reason,
			RevokedAt: entry.RevokedAt,
		})
	}
}

func licenseIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "licenseId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license id")
	}
	return id, nil
}

type issueResponse struct {
	Key     string          `json:"key"`
	License licenseResponse `json:"license"`
}

func issueResponseFromResult(result *licenses.IssueResult) issueResponse {
	return issueResponse{
		Key:     result.Key,
		License: licenseResponseFromModel(result.License),
	}
}

type licenseResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      string     `json:"product_id"`
	CustomerID     string     `json:"customer_id"`
	PlanID         *uuid.UUID `json:"plan_id,omitempty"`
	IssuedAt       time.Time  `json:"issued_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxActivations uint32     `json:"max_activations"`
	Unlimited      bool       `json:"unlimited"`
	FeatureFlags   []string   `json:"feature_flags"`
	SchemaVersion  uint8      `json:"schema_version"`
	KeyDigest      string     `json:"key_digest"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func licenseResponseFromModel(m *models.License) licenseResponse {
	return licenseResponse{
		ID:             m.ID,
		ProductID:      m.ProductID,
		CustomerID:     m.CustomerID,
		PlanID:         m.PlanID,
		IssuedAt:       m.IssuedAt,
		ExpiresAt:      m.ExpiresAt,
		MaxActivations: m.MaxActivations,
		Unlimited:      m.Unlimited,
		FeatureFlags:   []string(m.FeatureFlags),
		SchemaVersion:  m.SchemaVersion,
		KeyDigest:      m.KeyDigest,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
