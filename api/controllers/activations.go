package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/api/responses"
	"github.com/rflexhq/license-server/api/validators"
	"github.com/rflexhq/license-server/internal/activations"
	"github.com/rflexhq/license-server/internal/validation"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/types"
)

type validateRequest struct {
	Key               string        `json:"key" validate:"required"`
	DeviceFingerprint string        `json:"device_fingerprint" validate:"required,max=128"`
	ProductID         string        `json:"product_id"`
	Features          []string      `json:"features"`
	Offline           bool          `json:"offline"`
	DeviceName        string        `json:"device_name" validate:"max=255"`
	DeviceModel       string        `json:"device_model" validate:"max=100"`
	AppVersion        string        `json:"app_version" validate:"max=20"`
	HardwareInfo      types.JSONMap `json:"hardware_info"`
}

// Validate is the client-facing check-in endpoint. An invalid license is a
// 200 with an invalid verdict; only transient store trouble surfaces as an
// error status so clients know to retry instead of deactivating.
func Validate(svc validation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "validation service unavailable"))
			return
		}

		var payload validateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		verdict, err := svc.Validate(r.Context(), validation.Request{
			Key:               payload.Key,
			DeviceFingerprint: strings.TrimSpace(payload.DeviceFingerprint),
			Usage: validation.UsageContext{
				ProductID: strings.TrimSpace(payload.ProductID),
				Features:  payload.Features,
			},
			Offline:      payload.Offline,
			DeviceName:   payload.DeviceName,
			DeviceModel:  payload.DeviceModel,
			AppVersion:   payload.AppVersion,
			HardwareInfo: payload.HardwareInfo,
			IPAddress:    clientAddr(r),
			UserAgent:    r.UserAgent(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if verdict.Status == validation.StatusTransient {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "validation temporarily unavailable"))
			return
		}

		responses.WriteSuccess(w, verdictResponseFrom(verdict))
	}
}

type deactivateRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" validate:"required,max=128"`
}

// Deactivate frees a seat so another device can claim it.
func Deactivate(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable"))
			return
		}

		id, err := licenseIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deactivateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Release(r.Context(), id, strings.TrimSpace(payload.DeviceFingerprint))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if outcome == activations.ReleaseNotFound {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "activation not found"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// ActivationList shows which devices hold seats on a license.
func ActivationList(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable"))
			return
		}

		id, err := licenseIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByLicense(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]activationResponse, len(rows))
		for i, row := range rows {
			items[i] = activationResponse{
				ID:                row.ID,
				LicenseID:         row.LicenseID,
				DeviceFingerprint: row.DeviceFingerprint,
				DeviceName:        row.DeviceName,
				DeviceModel:       row.DeviceModel,
				AppVersion:        row.AppVersion,
				ActivatedAt:       row.ActivatedAt,
				LastSeenAt:        row.LastSeenAt,
			}
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

type verdictResponse struct {
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	LicenseID    *uuid.UUID `json:"license_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	FeatureFlags []string   `json:"feature_flags,omitempty"`
	DeviceToken  string     `json:"device_token,omitempty"`
}

func verdictResponseFrom(v validation.Verdict) verdictResponse {
	return verdictResponse{
		Status:       v.Status.String(),
		Reason:       string(v.Reason),
		LicenseID:    v.LicenseID,
		ExpiresAt:    v.ExpiresAt,
		FeatureFlags: v.FeatureFlags,
		DeviceToken:  v.DeviceToken,
	}
}

type activationResponse struct {
	ID                uuid.UUID `json:"id"`
	LicenseID         uuid.UUID `json:"license_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	DeviceName        string    `json:"device_name,omitempty"`
	DeviceModel       string    `json:"device_model,omitempty"`
	AppVersion        string    `json:"app_version,omitempty"`
	ActivatedAt       time.Time `json:"activated_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

func clientAddr(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	return r.RemoteAddr
}
