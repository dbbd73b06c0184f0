package consultation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsura/portal-api/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *mockRepo) {
	svc, repo := newTestService()
	return NewHandler(svc), svc, repo
}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, owner OwnerContext) echo.Context {
	ctx := req.Context()
	ctx = context.WithValue(ctx, auth.ClinicIDKey, owner.ClinicID.String())
	ctx = context.WithValue(ctx, auth.UserIDKey, owner.DoctorID.String())
	req = req.WithContext(ctx)
	return e.NewContext(req, rec)
}

func TestCreateDraft_ReturnsDraft(t *testing.T) {
	h, _, _ := newTestHandler()
	owner := testOwner()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/draft", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, owner)

	if err := h.CreateDraft(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var cons Consultation
	if err := json.Unmarshal(rec.Body.Bytes(), &cons); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cons.Status != StatusDraft {
		t.Errorf("expected draft, got %s", cons.Status)
	}
	if cons.ClinicID != owner.ClinicID {
		t.Errorf("expected clinic %s, got %s", owner.ClinicID, cons.ClinicID)
	}
}

func TestCreateDraft_ReusesExistingDraft(t *testing.T) {
	h, svc, _ := newTestHandler()
	owner := testOwner()
	existing, _ := svc.EnsureDraft(context.Background(), owner, nil)

	e := echo.New()
	body := `{"consultation_id":"` + existing.ID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/draft", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, owner)

	if err := h.CreateDraft(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var cons Consultation
	if err := json.Unmarshal(rec.Body.Bytes(), &cons); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cons.ID != existing.ID {
		t.Errorf("expected existing draft %s, got %s", existing.ID, cons.ID)
	}
}

func TestCreateDraft_MissingIdentity(t *testing.T) {
	h, _, _ := newTestHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/draft", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateDraft(c)
	if err == nil {
		t.Fatal("expected error without clinic identity")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGetConsultation_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetConsultation(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestSubmit_ValidationMapsTo422(t *testing.T) {
	h, svc, _ := newTestHandler()
	owner := testOwner()
	cons, _ := svc.EnsureDraft(context.Background(), owner, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, owner)
	c.SetParamNames("id")
	c.SetParamValues(cons.ID.String())

	err := h.Submit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for incomplete consultation, got %v", err)
	}
}

func TestApplyDecision_IllegalTransitionMapsTo409(t *testing.T) {
	h, svc, _ := newTestHandler()
	cons, _ := svc.EnsureDraft(context.Background(), testOwner(), nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"accepted":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(cons.ID.String())

	err := h.ApplyDecision(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for decision on draft, got %v", err)
	}
}

func TestListConsultations_FiltersByStatus(t *testing.T) {
	h, svc, repo := newTestHandler()
	owner := testOwner()
	draft := readyDraft(t, svc, repo, owner)
	_ = draft
	sentConsultation(t, svc, repo, owner)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?status=sent", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, owner)

	if err := h.ListConsultations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 sent consultation, got %d", resp.Total)
	}
}
