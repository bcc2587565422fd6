package licenses

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rflexhq/license-server/internal/plans"
	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/internal/revocations"
	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/enums"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
	"github.com/rflexhq/license-server/pkg/licensekey"
	pkgpagination "github.com/rflexhq/license-server/pkg/pagination"
	"github.com/rflexhq/license-server/pkg/signing"
	"github.com/rflexhq/license-server/pkg/types"
)

func paramsWithLimit(limit int) pkgpagination.Params {
	return pkgpagination.Params{Limit: limit}
}

func paramsWithCursor(limit int, cursor string) pkgpagination.Params {
	return pkgpagination.Params{Limit: limit, Cursor: cursor}
}

type testEnv struct {
	svc         Service
	revocations revocations.Service
	signer      signing.Signer
	pub         ed25519.PublicKey
	conn        *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.License{}, &models.RevocationEntry{}, &models.Plan{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := signing.NewSigner(priv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	base := repo.NewBase(conn)
	revocationSvc, err := revocations.NewService(revocations.NewRepository(base), nil)
	if err != nil {
		t.Fatalf("revocation service: %v", err)
	}
	planSvc, err := plans.NewService(plans.NewRepository(base))
	if err != nil {
		t.Fatalf("plan service: %v", err)
	}
	svc, err := NewService(NewRepository(base), planSvc, revocationSvc, signer, nil)
	if err != nil {
		t.Fatalf("license service: %v", err)
	}
	return &testEnv{svc: svc, revocations: revocationSvc, signer: signer, pub: pub, conn: conn}
}

func futureTime(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(d).Truncate(time.Second)
	return &t
}

func TestIssueSignsAndPersists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.svc.Issue(ctx, IssueInput{
		ProductID:    "rflex-desktop",
		CustomerID:   "cust-1",
		SeatCount:    5,
		ExpiresAt:    futureTime(24 * time.Hour),
		FeatureFlags: []string{"export"},
		Notes:        "trial extension",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	payload, sig, err := licensekey.DecodeKey(res.Key)
	if err != nil {
		t.Fatalf("decode issued key: %v", err)
	}
	canonical, err := licensekey.EncodeCanonical(payload)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !signing.Verify(env.pub, canonical, sig) {
		t.Fatal("issued key does not verify")
	}
	if payload.LicenseID != res.License.ID {
		t.Fatal("key and row disagree on license id")
	}
	if payload.MaxActivations != 5 {
		t.Fatalf("unexpected seat count %d", payload.MaxActivations)
	}

	// The row must exist and match the key digest.
	stored, err := env.svc.Get(ctx, res.License.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.KeyDigest != licensekey.Digest(res.Key) {
		t.Fatal("stored digest does not match issued key")
	}
	if stored.Notes != "trial extension" {
		t.Fatalf("notes not persisted: %q", stored.Notes)
	}
}

func TestIssuePolicyErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	cases := map[string]struct {
		input IssueInput
		code  pkgerrors.Code
	}{
		"missing product": {
			IssueInput{CustomerID: "c", SeatCount: 1},
			pkgerrors.CodeValidation,
		},
		"missing customer": {
			IssueInput{ProductID: "p", SeatCount: 1},
			pkgerrors.CodeValidation,
		},
		"zero seats": {
			IssueInput{ProductID: "p", CustomerID: "c"},
			pkgerrors.CodePolicy,
		},
		"unlimited with seats": {
			IssueInput{ProductID: "p", CustomerID: "c", SeatCount: 3, Unlimited: true},
			pkgerrors.CodePolicy,
		},
		"past expiry": {
			IssueInput{ProductID: "p", CustomerID: "c", SeatCount: 1, ExpiresAt: futureTime(-time.Hour)},
			pkgerrors.CodePolicy,
		},
	}
	for name, tc := range cases {
		_, err := env.svc.Issue(ctx, tc.input)
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != tc.code {
			t.Errorf("%s: expected %s, got %v", name, tc.code, err)
		}
	}
}

func TestIssueFromPlan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	plan := &models.Plan{
		ID:             uuid.New(),
		Tier:           enums.PlanTierPro,
		Name:           "Pro",
		MaxActivations: 10,
		ValidityDays:   365,
		PricePerDevice: decimal.NewFromInt(79),
		FeatureFlags:   types.NewStringSet([]string{"export", "advanced-reports"}),
		Active:         true,
	}
	if err := env.conn.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	res, err := env.svc.Issue(ctx, IssueInput{
		ProductID:  "rflex-desktop",
		CustomerID: "cust-2",
		PlanTier:   enums.PlanTierPro,
	})
	if err != nil {
		t.Fatalf("issue from plan: %v", err)
	}
	if res.License.PlanID == nil || *res.License.PlanID != plan.ID {
		t.Fatal("plan id not recorded")
	}
	if res.License.MaxActivations != 10 {
		t.Fatalf("seat count not drawn from plan: %d", res.License.MaxActivations)
	}
	if res.License.ExpiresAt == nil {
		t.Fatal("validity not drawn from plan")
	}
	if !res.License.FeatureFlags.ContainsAll([]string{"export", "advanced-reports"}) {
		t.Fatalf("features not drawn from plan: %v", res.License.FeatureFlags)
	}

	_, err = env.svc.Issue(ctx, IssueInput{
		ProductID:  "rflex-desktop",
		CustomerID: "cust-2",
		PlanTier:   enums.PlanTierEnterprise,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unseeded tier: expected not-found, got %v", err)
	}
}

func TestRenewReissuesKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.svc.Issue(ctx, IssueInput{
		ProductID:  "rflex-desktop",
		CustomerID: "cust-3",
		SeatCount:  2,
		ExpiresAt:  futureTime(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	oldExpiry := *res.License.ExpiresAt
	oldDigest := res.License.KeyDigest

	renewed, err := env.svc.Renew(ctx, res.License.ID, 30)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}

	wantExpiry := oldExpiry.AddDate(0, 0, 30)
	if !renewed.License.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry: got %s, want %s", renewed.License.ExpiresAt, wantExpiry)
	}
	if renewed.License.KeyDigest == oldDigest {
		t.Fatal("renewal did not rotate the key")
	}

	// The renewed key verifies and carries the same license id.
	payload, sig, err := licensekey.DecodeKey(renewed.Key)
	if err != nil {
		t.Fatalf("decode renewed key: %v", err)
	}
	canonical, err := licensekey.EncodeCanonical(payload)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !signing.Verify(env.pub, canonical, sig) {
		t.Fatal("renewed key does not verify")
	}
	if payload.LicenseID != res.License.ID {
		t.Fatal("renewal changed the license id")
	}
}

func TestRenewGuards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.svc.Renew(ctx, uuid.New(), 30); pkgerrors.As(err) == nil {
		t.Fatalf("unknown license: expected coded error, got %v", err)
	}

	perpetual, err := env.svc.Issue(ctx, IssueInput{ProductID: "p", CustomerID: "c", SeatCount: 1})
	if err != nil {
		t.Fatalf("issue perpetual: %v", err)
	}
	if _, err := env.svc.Renew(ctx, perpetual.License.ID, 30); err == nil {
		t.Fatal("perpetual license renewed")
	}

	expiring, err := env.svc.Issue(ctx, IssueInput{ProductID: "p", CustomerID: "c", SeatCount: 1, ExpiresAt: futureTime(time.Hour)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := env.revocations.Revoke(ctx, expiring.License.ID, "fraud"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = env.svc.Renew(ctx, expiring.License.ID, 30)
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeConflict {
		t.Fatalf("revoked license: expected conflict, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		_, err := env.svc.Issue(ctx, IssueInput{
			ProductID:  "rflex-desktop",
			CustomerID: "cust-list",
			SeatCount:  1,
		})
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
	}

	first, err := env.svc.List(ctx, ListParams{CustomerID: "cust-list", Params: paramsWithLimit(3)})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(first.Items) != 3 || first.Cursor == "" {
		t.Fatalf("page 1: items=%d cursor=%q", len(first.Items), first.Cursor)
	}

	second, err := env.svc.List(ctx, ListParams{CustomerID: "cust-list", Params: paramsWithCursor(3, first.Cursor)})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Items) != 2 || second.Cursor != "" {
		t.Fatalf("page 2: items=%d cursor=%q", len(second.Items), second.Cursor)
	}

	seen := map[uuid.UUID]bool{}
	for _, item := range append(first.Items, second.Items...) {
		if seen[item.ID] {
			t.Fatalf("license %s appeared twice", item.ID)
		}
		seen[item.ID] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct licenses, saw %d", len(seen))
	}

	other, err := env.svc.List(ctx, ListParams{CustomerID: fmt.Sprintf("cust-%s", uuid.NewString())})
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other.Items) != 0 {
		t.Fatalf("expected empty listing, got %d", len(other.Items))
	}
}
