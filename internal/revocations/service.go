// Package revocations owns the revocation registry. Revocation is terminal:
// entries are never updated or deleted, which is what makes the positive
// cache below safe.
package revocations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rflexhq/license-server/pkg/db/models"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
)

type revocationsRepository interface {
	Insert(ctx context.Context, entry *models.RevocationEntry) (bool, error)
	FindByID(ctx context.Context, licenseID uuid.UUID) (*models.RevocationEntry, error)
	Exists(ctx context.Context, licenseID uuid.UUID) (bool, error)
}

type revocationCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RevocationKey(licenseID string) string
}

// RevokeOutcome distinguishes a fresh revocation from a repeat.
type RevokeOutcome int

const (
	Revoked RevokeOutcome = iota
	AlreadyRevoked
)

// Service exposes the revocation registry.
type Service interface {
	Revoke(ctx context.Context, licenseID uuid.UUID, reason string) (RevokeOutcome, *models.RevocationEntry, error)
	IsRevoked(ctx context.Context, licenseID uuid.UUID) (bool, error)
}

type service struct {
	repo  revocationsRepository
	cache revocationCache
	now   func() time.Time
}

// NewService builds the revocation service. The cache is optional; without
// it every check goes straight to the store.
func NewService(repo revocationsRepository, cache revocationCache) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("revocation repository required")
	}
	return &service{repo: repo, cache: cache, now: time.Now}, nil
}

// Revoke marks the license invalid. Idempotent: a second call reports
// AlreadyRevoked and returns the original entry untouched.
func (s *service) Revoke(ctx context.Context, licenseID uuid.UUID, reason string) (RevokeOutcome, *models.RevocationEntry, error) {
	if licenseID == uuid.Nil {
		return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}

	entry := &models.RevocationEntry{
		LicenseID: licenseID,
		RevokedAt: s.now().UTC(),
		Reason:    reason,
	}
	inserted, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert revocation")
	}

	if !inserted {
		existing, err := s.repo.FindByID(ctx, licenseID)
		if err != nil {
			return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup revocation")
		}
		s.cachePositive(ctx, licenseID)
		return AlreadyRevoked, existing, nil
	}

	s.cachePositive(ctx, licenseID)
	return Revoked, entry, nil
}

// IsRevoked answers synchronously. Only positive entries are cached, so a
// cache miss or cache failure always falls through to the registry and the
// answer is never eventually consistent.
func (s *service) IsRevoked(ctx context.Context, licenseID uuid.UUID) (bool, error) {
	if licenseID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}

	if s.cache != nil {
		// Any cache error (miss or outage) falls through to the registry.
		if _, err := s.cache.Get(ctx, s.cache.RevocationKey(licenseID.String())); err == nil {
			return true, nil
		}
	}

	revoked, err := s.repo.Exists(ctx, licenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check revocation")
	}
	if revoked {
		s.cachePositive(ctx, licenseID)
	}
	return revoked, nil
}

func (s *service) cachePositive(ctx context.Context, licenseID uuid.UUID) {
	if s.cache == nil {
		return
	}
	// Best effort: a failed cache write only costs a store round trip later.
	_ = s.cache.Set(ctx, s.cache.RevocationKey(licenseID.String()), "1", 0)
}
