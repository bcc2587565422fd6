// Package licenses implements issuance: turning a policy (who, what, how
// many seats, until when) into a signed, persisted license key. Keys are
// persisted before they are returned so a key in the wild always has a row
// behind it.
package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/licensekey"
	"github.com/rflexhq/license-server/pkg/metrics"
	pkgpagination "github.com/rflexhq/license-server/pkg/pagination"
	"github.com/rflexhq/license-server/pkg/signing"
	"github.com/rflexhq/license-server/pkg/types"
)

type licensesRepository interface {
	Create(ctx context.Context, license *models.License) (*models.License, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.License, error)
	UpdateRenewal(ctx context.Context, id uuid.UUID, expiresAt *time.Time, signature []byte, keyDigest string) error
	List(ctx context.Context, opts listQuery) ([]models.License, error)
}

type plansCatalog interface {
	GetByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error)
}

type revocationChecker interface {
	IsRevoked(ctx context.Context, licenseID uuid.UUID) (bool, error)
}

// IssueInput is the issuance policy. Either name a plan tier (seat count,
// validity and features come from the catalog) or spell the policy out.
type IssueInput struct {
	ProductID  string
	CustomerID string

	PlanTier enums.PlanTier // optional; overrides the explicit fields below

	SeatCount    uint32
	Unlimited    bool
	ExpiresAt    *time.Time // nil means perpetual
	FeatureFlags []string
	Notes        string
}

// IssueResult pairs the key string handed to the customer with its row.
type IssueResult struct {
	Key     string
	License *models.License
}

// Service exposes license issuance, renewal and lookup.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*IssueResult, error)
	Renew(ctx context.Context, licenseID uuid.UUID, days int) (*IssueResult, error)
	Get(ctx context.Context, licenseID uuid.UUID) (*models.License, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo        licensesRepository
	plans       plansCatalog
	revocations revocationChecker
	signer      signing.Signer
	metrics     *metrics.ValidationMetrics
	now         func() time.Time
}

// NewService builds the issuance service. The plan catalog is optional;
// without it only explicit policies can be issued.
func NewService(repo licensesRepository, plans plansCatalog, revocations revocationChecker, signer signing.Signer, m *metrics.ValidationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("license repository required")
	}
	if revocations == nil {
		return nil, fmt.Errorf("revocation checker required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	return &service{
		repo:        repo,
		plans:       plans,
		revocations: revocations,
		signer:      signer,
		metrics:     m,
		now:         time.Now,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	if input.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer_id is required")
	}

	now := s.now().UTC().Truncate(time.Second)

	var planID *uuid.UUID
	if input.PlanTier != "" {
		if s.plans == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan-backed issuance is not configured")
		}
		plan, err := s.plans.GetByTier(ctx, input.PlanTier)
		if err != nil {
			return nil, err
		}
		planID = &plan.ID
		input.SeatCount = plan.MaxActivations
		input.Unlimited = plan.Unlimited
		input.FeatureFlags = []string(plan.FeatureFlags)
		if plan.ValidityDays > 0 {
			expiry := now.AddDate(0, 0, plan.ValidityDays)
			input.ExpiresAt = &expiry
		} else {
			input.ExpiresAt = nil
		}
	}

	if !input.Unlimited && input.SeatCount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodePolicy, "seat count must be at least 1")
	}
	if input.Unlimited && input.SeatCount != 0 {
		return nil, pkgerrors.New(pkgerrors.CodePolicy, "unlimited licenses must not set a seat count")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodePolicy, "expiry must be in the future")
	}

	payload := licensekey.Payload{
		SchemaVersion:  licensekey.CurrentSchemaVersion,
		LicenseID:      uuid.New(),
		ProductID:      input.ProductID,
		CustomerID:     input.CustomerID,
		IssuedAt:       now,
		MaxActivations: input.SeatCount,
		Unlimited:      input.Unlimited,
		FeatureFlags:   input.FeatureFlags,
	}
	if input.ExpiresAt != nil {
		expiry := input.ExpiresAt.UTC().Truncate(time.Second)
		payload.ExpiresAt = &expiry
	}

	key, signature, err := s.signPayload(payload)
	if err != nil {
		return nil, err
	}

	row := &models.License{
		ID:             payload.LicenseID,
		ProductID:      payload.ProductID,
		CustomerID:     payload.CustomerID,
		PlanID:         planID,
		IssuedAt:       payload.IssuedAt,
		ExpiresAt:      payload.ExpiresAt,
		MaxActivations: payload.MaxActivations,
		Unlimited:      payload.Unlimited,
		FeatureFlags:   types.NewStringSet(payload.FeatureFlags),
		SchemaVersion:  payload.SchemaVersion,
		Signature:      signature,
		KeyDigest:      licensekey.Digest(key),
		Notes:          input.Notes,
	}

	// Persist first: a key is only handed out once its row exists.
	created, err := s.repo.Create(ctx, row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create license")
	}

	s.metrics.IncIssued()
	return &IssueResult{Key: key, License: created}, nil
}

// Renew extends the expiry by the given number of days, counted from the
// current expiry or from now, whichever is later. Renewal is an explicit
// administrative re-issue: it produces a new signed key for the same
// license id and rewrites the renewable columns.
func (s *service) Renew(ctx context.Context, licenseID uuid.UUID, days int) (*IssueResult, error) {
	if licenseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	if days < 1 {
		return nil, pkgerrors.New(pkgerrors.CodePolicy, "renewal days must be at least 1")
	}

	row, err := s.repo.FindByID(ctx, licenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}

	revoked, err := s.revocations.IsRevoked(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "revoked licenses cannot be renewed")
	}
	if row.ExpiresAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "perpetual licenses do not renew")
	}

	now := s.now().UTC().Truncate(time.Second)
	from := *row.ExpiresAt
	if from.Before(now) {
		from = now
	}
	newExpiry := from.AddDate(0, 0, days)

	payload := licensekey.Payload{
		SchemaVersion:  row.SchemaVersion,
		LicenseID:      row.ID,
		ProductID:      row.ProductID,
		CustomerID:     row.CustomerID,
		IssuedAt:       row.IssuedAt,
		ExpiresAt:      &newExpiry,
		MaxActivations: row.MaxActivations,
		Unlimited:      row.Unlimited,
		FeatureFlags:   []string(row.FeatureFlags),
	}

	key, signature, err := s.signPayload(payload)
	if err != nil {
		return nil, err
	}

	digest := licensekey.Digest(key)
	if err := s.repo.UpdateRenewal(ctx, row.ID, &newExpiry, signature, digest); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update renewal")
	}

	row.ExpiresAt = &newExpiry
	row.Signature = signature
	row.KeyDigest = digest
	return &IssueResult{Key: key, License: row}, nil
}

func (s *service) Get(ctx context.Context, licenseID uuid.UUID) (*models.License, error) {
	if licenseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	row, err := s.repo.FindByID(ctx, licenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	return row, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := listQuery{
		customerID: strings.TrimSpace(params.CustomerID),
		productID:  strings.TrimSpace(params.ProductID),
		limit:      pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses")
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		// The cursor points at the last row handed out; the repo resumes
		// strictly after it.
		last := rows[limit-1]
		nextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	items := make([]ListItem, len(rows))
	for i, row := range rows {
		items[i] = toListItem(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

func (s *service) signPayload(payload licensekey.Payload) (string, []byte, error) {
	canonical, err := licensekey.EncodeCanonical(payload)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodePolicy, err, "encode license payload")
	}
	signature := s.signer.Sign(canonical)
	key, err := licensekey.EncodeKey(canonical, signature)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode license key")
	}
	return key, signature, nil
}
