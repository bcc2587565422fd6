package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rflexhq/license-server/internal/licenses"
	"github.com/rflexhq/license-server/internal/revocations"
	"github.com/rflexhq/license-server/pkg/db/models"
	pkgerrors "github.com/rflexhq/license-server/pkg/errors"
)

type stubLicenseService struct {
	issueInput  licenses.IssueInput
	issueResult *licenses.IssueResult
	issueErr    error

	renewDays   int
	renewResult *licenses.IssueResult
	renewErr    error

	getResult *models.License
	getErr    error

	listResult *licenses.ListResult
	listErr    error
}

func (s *stubLicenseService) Issue(_ context.Context, input licenses.IssueInput) (*licenses.IssueResult, error) {
	s.issueInput = input
	return s.issueResult, s.issueErr
}

func (s *stubLicenseService) Renew(_ context.Context, _ uuid.UUID, days int) (*licenses.IssueResult, error) {
	s.renewDays = days
	return s.renewResult, s.renewErr
}

func (s *stubLicenseService) Get(_ context.Context, _ uuid.UUID) (*models.License, error) {
	return s.getResult, s.getErr
}

func (s *stubLicenseService) List(_ context.Context, _ licenses.ListParams) (*licenses.ListResult, error) {
	return s.listResult, s.listErr
}

type stubRevocationService struct {
	outcome revocations.RevokeOutcome
	entry   *models.RevocationEntry
	err     error
	reason  string
}

func (s *stubRevocationService) Revoke(_ context.Context, _ uuid.UUID, reason string) (revocations.RevokeOutcome, *models.RevocationEntry, error) {
	s.reason = reason
	return s.outcome, s.entry, s.err
}

func (s *stubRevocationService) IsRevoked(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func sampleLicense() *models.License {
	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	return &models.License{
		ID:             uuid.New(),
		ProductID:      "rflex-cad",
		CustomerID:     "cust-1",
		IssuedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:      &expiry,
		MaxActivations: 5,
		KeyDigest:      "abc123",
	}
}

func requestWithLicenseID(method, target, id string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("licenseId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeEnvelope(t *testing.T, body *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func decodeErrorCode(t *testing.T, body *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}

func TestLicenseIssueReturnsKey(t *testing.T) {
	svc := &stubLicenseService{
		issueResult: &licenses.IssueResult{Key: "RFLX-AAAAA-BBBBB", License: sampleLicense()},
	}
	handler := LicenseIssue(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses",
		strings.NewReader(`{"product_id":"rflex-cad","customer_id":"cust-1","seat_count":5}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeEnvelope(t, resp)
	if data["key"] != "RFLX-AAAAA-BBBBB" {
		t.Fatalf("expected key in response, got %v", data["key"])
	}
	if svc.issueInput.SeatCount != 5 {
		t.Fatalf("expected seat count forwarded, got %d", svc.issueInput.SeatCount)
	}
}

func TestLicenseIssueRejectsMissingFields(t *testing.T) {
	svc := &stubLicenseService{}
	handler := LicenseIssue(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses",
		strings.NewReader(`{"customer_id":"cust-1"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %s", code)
	}
}

func TestLicenseIssueRejectsUnknownPlanTier(t *testing.T) {
	svc := &stubLicenseService{}
	handler := LicenseIssue(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses",
		strings.NewReader(`{"product_id":"rflex-cad","customer_id":"cust-1","plan_tier":"platinum"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestLicenseIssueMapsPolicyErrors(t *testing.T) {
	svc := &stubLicenseService{
		issueErr: pkgerrors.New(pkgerrors.CodePolicy, "seat count must be at least 1"),
	}
	handler := LicenseIssue(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses",
		strings.NewReader(`{"product_id":"rflex-cad","customer_id":"cust-1"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodePolicy) {
		t.Fatalf("expected policy code, got %s", code)
	}
}

func TestLicenseDetailRejectsBadID(t *testing.T) {
	svc := &stubLicenseService{getResult: sampleLicense()}
	handler := LicenseDetail(svc, nil)

	req := requestWithLicenseID(http.MethodGet, "/api/v1/licenses/not-a-uuid", "not-a-uuid", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestLicenseRenewForwardsDays(t *testing.T) {
	svc := &stubLicenseService{
		renewResult: &licenses.IssueResult{Key: "RFLX-CCCCC", License: sampleLicense()},
	}
	handler := LicenseRenew(svc, nil)

	id := uuid.NewString()
	req := requestWithLicenseID(http.MethodPost, "/api/v1/licenses/"+id+"/renew", id,
		strings.NewReader(`{"days":90}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.renewDays != 90 {
		t.Fatalf("expected days forwarded, got %d", svc.renewDays)
	}
}

func TestLicenseRenewSurfacesConflict(t *testing.T) {
	svc := &stubLicenseService{
		renewErr: pkgerrors.New(pkgerrors.CodeConflict, "perpetual licenses do not renew"),
	}
	handler := LicenseRenew(svc, nil)

	id := uuid.NewString()
	req := requestWithLicenseID(http.MethodPost, "/api/v1/licenses/"+id+"/renew", id,
		strings.NewReader(`{"days":30}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestLicenseRevokeReportsRepeatCalls(t *testing.T) {
	licenseID := uuid.New()
	svc := &stubRevocationService{
		outcome: revocations.AlreadyRevoked,
		entry: &models.RevocationEntry{
			LicenseID: licenseID,
			Reason:    "chargeback",
			RevokedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	handler := LicenseRevoke(svc, nil)

	req := requestWithLicenseID(http.MethodPost, "/api/v1/licenses/"+licenseID.String()+"/revoke", licenseID.String(),
		strings.NewReader(`{"reason":"fraud report"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	data := decodeEnvelope(t, resp)
	if data["status"] != "already_revoked" {
		t.Fatalf("expected already_revoked, got %v", data["status"])
	}
	if data["reason"] != "chargeback" {
		t.Fatalf("repeat revocation must report the original reason, got %v", data["reason"])
	}
	if svc.reason != "fraud report" {
		t.Fatalf("expected trimmed reason forwarded, got %q", svc.reason)
	}
}
