// Package activations owns the seat ledger. The claim path is the only
// mutating, concurrency-sensitive operation in the engine: it must hand out
// exactly max_activations seats no matter how many processes race for them.
package activations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/pkg/db"
	"github.com/rflexhq/license-server/pkg/db/models"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/types"
)

// ClaimStatus is the outcome of a seat claim attempt.
type ClaimStatus int

const (
	Claimed ClaimStatus = iota
	AlreadyActivated
	SeatLimitExceeded
)

func (s ClaimStatus) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case AlreadyActivated:
		return "already_activated"
	case SeatLimitExceeded:
		return "seat_limit_exceeded"
	default:
		return "unknown"
	}
}

// ClaimInput carries everything the ledger needs to bind a device. Seat
// policy (max, unlimited) comes from the verified license payload, not from
// the caller.
type ClaimInput struct {
	LicenseID         uuid.UUID
	DeviceFingerprint string
	MaxActivations    uint32
	Unlimited         bool

	DeviceName   string
	DeviceModel  string
	AppVersion   string
	HardwareInfo types.JSONMap
}

// ClaimResult reports the claim outcome and the surviving activation row.
type ClaimResult struct {
	Status     ClaimStatus
	Activation *models.Activation
}

// ReleaseOutcome is the result of an administrative deactivation.
type ReleaseOutcome int

const (
	Released ReleaseOutcome = iota
	ReleaseNotFound
)

// Service exposes the activation ledger.
type Service interface {
	TryClaimSeat(ctx context.Context, input ClaimInput) (*ClaimResult, error)
	Touch(ctx context.Context, licenseID uuid.UUID, fingerprint string) error
	Release(ctx context.Context, licenseID uuid.UUID, fingerprint string) (ReleaseOutcome, error)
	ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error)
	LastSeen(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*time.Time, error)
}

type service struct {
	repo *Repository
	base repo.Base
	now  func() time.Time
}

// NewService builds the activation ledger service.
func NewService(activationRepo *Repository, base repo.Base) (Service, error) {
	if activationRepo == nil {
		return nil, fmt.Errorf("activation repository required")
	}
	return &service{repo: activationRepo, base: base, now: time.Now}, nil
}

// TryClaimSeat binds the device to the license, consuming a seat if one is
// free. The whole check-and-insert runs in one transaction holding a row
// lock on the license, so concurrent claims across processes serialize at
// the store: N seats and N+k racing devices yield exactly N Claimed. The
// unique (license_id, device_fingerprint) key backstops same-device races.
func (s *service) TryClaimSeat(ctx context.Context, input ClaimInput) (*ClaimResult, error) {
	if input.LicenseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	if input.DeviceFingerprint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device fingerprint is required")
	}

	var result *ClaimResult
	err := s.base.Transaction(ctx, func(tx *gorm.DB) error {
		if err := lockLicenseRow(tx, input.LicenseID); err != nil {
			return err
		}

		existing, err := findByLicenseAndDevice(tx, input.LicenseID, input.DeviceFingerprint)
		if err == nil {
			now := s.now().UTC()
			if upErr := tx.Model(existing).Update("last_seen_at", now).Error; upErr != nil {
				return upErr
			}
			existing.LastSeenAt = now
			result = &ClaimResult{Status: AlreadyActivated, Activation: existing}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !input.Unlimited {
			count, err := countByLicense(tx, input.LicenseID)
			if err != nil {
				return err
			}
			if count >= int64(input.MaxActivations) {
				result = &ClaimResult{Status: SeatLimitExceeded}
				return nil
			}
		}

		now := s.now().UTC()
		row := &models.Activation{
			ID:                uuid.New(),
			LicenseID:         input.LicenseID,
			DeviceFingerprint: input.DeviceFingerprint,
			DeviceName:        input.DeviceName,
			DeviceModel:       input.DeviceModel,
			AppVersion:        input.AppVersion,
			HardwareInfo:      input.HardwareInfo,
			ActivatedAt:       now,
			LastSeenAt:        now,
		}
		if err := tx.Create(row).Error; err != nil {
			if db.IsDuplicateEntry(err) {
				// Lost a same-device race; the winner's row stands.
				winner, findErr := findByLicenseAndDevice(tx, input.LicenseID, input.DeviceFingerprint)
				if findErr != nil {
					return findErr
				}
				result = &ClaimResult{Status: AlreadyActivated, Activation: winner}
				return nil
			}
			return err
		}
		result = &ClaimResult{Status: Claimed, Activation: row}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim seat")
	}
	return result, nil
}

// Touch bumps last_seen_at. Unknown pairs are a not-found error so callers
// can distinguish a stale device from a slow clock.
func (s *service) Touch(ctx context.Context, licenseID uuid.UUID, fingerprint string) error {
	if licenseID == uuid.Nil || fingerprint == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "license id and device fingerprint are required")
	}
	rows, err := s.repo.TouchLastSeen(ctx, licenseID, fingerprint, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch activation")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "activation not found")
	}
	return nil
}

// Release frees a seat. Administrative only; validation never deletes rows.
func (s *service) Release(ctx context.Context, licenseID uuid.UUID, fingerprint string) (ReleaseOutcome, error) {
	if licenseID == uuid.Nil || fingerprint == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "license id and device fingerprint are required")
	}
	rows, err := s.repo.Delete(ctx, licenseID, fingerprint)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release activation")
	}
	if rows == 0 {
		return ReleaseNotFound, nil
	}
	return Released, nil
}

func (s *service) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error) {
	if licenseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	rows, err := s.repo.ListByLicense(ctx, licenseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activations")
	}
	return rows, nil
}

// LastSeen returns the device's last check-in time, or nil when the device
// has never activated. The validator uses it for the offline grace window.
func (s *service) LastSeen(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*time.Time, error) {
	row, err := s.repo.FindByLicenseAndDevice(ctx, licenseID, fingerprint)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup activation")
	}
	t := row.LastSeenAt
	return &t, nil
}

// lockLicenseRow takes FOR UPDATE on the license so concurrent claims
// serialize. SQLite has no row locks and serializes writers itself, so the
// clause is skipped there.
func lockLicenseRow(tx *gorm.DB, licenseID uuid.UUID) error {
	query := tx.Model(&models.License{})
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var license models.License
	return query.First(&license, "id = ?", licenseID).Error
}
