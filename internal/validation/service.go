// Package validation combines codec, signer, revocation registry and
// activation ledger into the single question the whole service exists to
// answer: is this key valid right now for this usage.
//
// Checks short-circuit in severity order: malformed, bad signature,
// revoked, expired, scope mismatch, seat limit. A license that is both
// expired and revoked therefore always reports revoked.
package validation

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rflexhq/license-server/internal/activations"
	"github.com/rflexhq/license-server/pkg/auth/devicetoken"
	"github.com/rflexhq/license-server/pkg/config"
	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/licensekey"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/metrics"
	"github.com/rflexhq/license-server/pkg/signing"
	"github.com/rflexhq/license-server/pkg/types"
)

type revocationChecker interface {
	IsRevoked(ctx context.Context, licenseID uuid.UUID) (bool, error)
}

type activationLedger interface {
	TryClaimSeat(ctx context.Context, input activations.ClaimInput) (*activations.ClaimResult, error)
	LastSeen(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*time.Time, error)
}

type auditLog interface {
	Insert(ctx context.Context, row *models.ValidationLog) error
}

// UsageContext describes what the client wants to use the license for.
type UsageContext struct {
	ProductID string
	Features  []string
}

// Request is one validation attempt from a device.
type Request struct {
	Key               string
	DeviceFingerprint string
	Usage             UsageContext

	// Offline marks a client-side check-in replayed after connectivity
	// loss; it arms the grace window on the expiry check.
	Offline bool

	DeviceName   string
	DeviceModel  string
	AppVersion   string
	HardwareInfo types.JSONMap
	IPAddress    string
	UserAgent    string
}

// Service answers validation requests.
type Service interface {
	Validate(ctx context.Context, req Request) (Verdict, error)
}

type service struct {
	publicKey   ed25519.PublicKey
	revocations revocationChecker
	ledger      activationLedger
	audit       auditLog
	metrics     *metrics.ValidationMetrics
	logg        *logger.Logger
	tokenCfg    config.DeviceTokenConfig
	gracePeriod time.Duration
	now         func() time.Time
}

// NewService builds the validator. The audit log and metrics are optional;
// everything else is required.
func NewService(publicKey ed25519.PublicKey, revocations revocationChecker, ledger activationLedger, audit auditLog, m *metrics.ValidationMetrics, logg *logger.Logger, tokenCfg config.DeviceTokenConfig, gracePeriod time.Duration) (Service, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verification public key must be %d bytes", ed25519.PublicKeySize)
	}
	if revocations == nil {
		return nil, fmt.Errorf("revocation checker required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("activation ledger required")
	}
	return &service{
		publicKey:   publicKey,
		revocations: revocations,
		ledger:      ledger,
		audit:       audit,
		metrics:     m,
		logg:        logg,
		tokenCfg:    tokenCfg,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}, nil
}

// Validate never returns an error for an invalid license; invalidity is a
// verdict, not a failure. The error return is reserved for request-level
// problems (missing fingerprint).
func (s *service) Validate(ctx context.Context, req Request) (Verdict, error) {
	if req.DeviceFingerprint == "" {
		return Verdict{}, pkgerrors.New(pkgerrors.CodeValidation, "device fingerprint is required")
	}

	started := s.now()
	verdict := s.decide(ctx, req)
	s.record(ctx, req, verdict, s.now().Sub(started))
	return verdict, nil
}

func (s *service) decide(ctx context.Context, req Request) Verdict {
	now := s.now().UTC()

	payload, sig, err := licensekey.DecodeKey(req.Key)
	if err != nil {
		// Unsupported versions and structural damage look identical to
		// the caller; no forgery oracle.
		return Verdict{Status: StatusInvalid, Reason: ReasonMalformed}
	}

	canonical, err := licensekey.EncodeCanonical(payload)
	if err != nil {
		return Verdict{Status: StatusInvalid, Reason: ReasonMalformed}
	}
	if !signing.Verify(s.publicKey, canonical, sig) {
		return Verdict{Status: StatusInvalid, Reason: ReasonBadSignature}
	}

	licenseID := payload.LicenseID

	revoked, err := s.revocations.IsRevoked(ctx, licenseID)
	if err != nil {
		return s.transient(ctx, err, "revocation check failed")
	}
	if revoked {
		return s.invalid(licenseID, ReasonRevoked)
	}

	grace := false
	if payload.ExpiresAt != nil && now.After(*payload.ExpiresAt) {
		grace = s.withinGraceWindow(ctx, licenseID, req, now)
		if !grace {
			return s.invalid(licenseID, ReasonExpired)
		}
	}

	if req.Usage.ProductID != "" && req.Usage.ProductID != payload.ProductID {
		return s.invalid(licenseID, ReasonScopeMismatch)
	}
	if len(req.Usage.Features) > 0 && !types.NewStringSet(payload.FeatureFlags).ContainsAll(req.Usage.Features) {
		return s.invalid(licenseID, ReasonScopeMismatch)
	}

	claim, err := s.ledger.TryClaimSeat(ctx, activations.ClaimInput{
		LicenseID:         licenseID,
		DeviceFingerprint: req.DeviceFingerprint,
		MaxActivations:    payload.MaxActivations,
		Unlimited:         payload.Unlimited,
		DeviceName:        req.DeviceName,
		DeviceModel:       req.DeviceModel,
		AppVersion:        req.AppVersion,
		HardwareInfo:      req.HardwareInfo,
	})
	if err != nil {
		// A verified key whose row is missing means the store is out of
		// step with issuance; surface it as retryable, not as invalid.
		return s.transient(ctx, err, "seat claim failed")
	}
	if claim.Status == activations.SeatLimitExceeded {
		s.metrics.IncSeatDenied()
		return s.invalid(licenseID, ReasonSeatLimitExceeded)
	}

	verdict := Verdict{
		Status:       StatusValid,
		LicenseID:    &licenseID,
		ExpiresAt:    payload.ExpiresAt,
		FeatureFlags: payload.FeatureFlags,
	}
	if grace {
		verdict.Reason = ReasonGracePeriod
	}
	verdict.DeviceToken = s.mintToken(ctx, payload, req.DeviceFingerprint)
	return verdict
}

// withinGraceWindow allows an offline check-in to pass the expiry check when
// the device was last seen inside the configured window.
func (s *service) withinGraceWindow(ctx context.Context, licenseID uuid.UUID, req Request, now time.Time) bool {
	if !req.Offline || s.gracePeriod <= 0 {
		return false
	}
	lastSeen, err := s.ledger.LastSeen(ctx, licenseID, req.DeviceFingerprint)
	if err != nil || lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= s.gracePeriod
}

func (s *service) invalid(licenseID uuid.UUID, reason Reason) Verdict {
	return Verdict{Status: StatusInvalid, Reason: reason, LicenseID: &licenseID}
}

func (s *service) transient(ctx context.Context, err error, msg string) Verdict {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
	return Verdict{Status: StatusTransient}
}

func (s *service) mintToken(ctx context.Context, payload licensekey.Payload, fingerprint string) string {
	if s.tokenCfg.Secret == "" {
		return ""
	}
	token, err := devicetoken.Mint(s.tokenCfg, s.now().UTC(), devicetoken.Payload{
		LicenseID:         payload.LicenseID,
		DeviceFingerprint: fingerprint,
		ProductID:         payload.ProductID,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "minting device token failed", err)
		}
		return ""
	}
	return token
}

// record appends the audit row and bumps the verdict counter. Neither can
// change the verdict.
func (s *service) record(ctx context.Context, req Request, verdict Verdict, elapsed time.Duration) {
	s.metrics.ObserveVerdict(verdict.MetricLabel(), elapsed)

	if s.audit == nil {
		return
	}
	outcome := enums.ValidationOutcomeFailed
	switch {
	case verdict.Status == StatusValid && verdict.Reason == ReasonGracePeriod:
		outcome = enums.ValidationOutcomeGrace
	case verdict.Status == StatusValid:
		outcome = enums.ValidationOutcomeSuccess
	}

	row := &models.ValidationLog{
		ID:                uuid.New(),
		LicenseID:         verdict.LicenseID,
		DeviceFingerprint: req.DeviceFingerprint,
		Outcome:           outcome,
		Reason:            string(verdict.Reason),
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		Offline:           req.Offline,
		ValidatedAt:       s.now().UTC(),
	}
	if err := s.audit.Insert(ctx, row); err != nil && s.logg != nil {
		s.logg.Error(ctx, "writing validation log failed", err)
	}
}
