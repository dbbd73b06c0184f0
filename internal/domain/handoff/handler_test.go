package handoff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsura/portal-api/internal/domain/consultation"
	"github.com/clinsura/portal-api/internal/platform/auth"
)

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, owner consultation.OwnerContext) echo.Context {
	ctx := req.Context()
	ctx = context.WithValue(ctx, auth.ClinicIDKey, owner.ClinicID.String())
	ctx = context.WithValue(ctx, auth.UserIDKey, owner.DoctorID.String())
	req = req.WithContext(ctx)
	return e.NewContext(req, rec)
}

func TestStartHandoff_ReturnsLinks(t *testing.T) {
	svc, anchor := newTestService()
	h := NewHandler(svc)
	owner := testOwner()
	draft, _ := anchor.EnsureDraft(context.Background(), owner, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, owner)
	c.SetParamNames("id")
	c.SetParamValues(draft.ID.String())

	if err := h.StartHandoff(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var attempt Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempt); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if attempt.ConsultationID != draft.ID {
		t.Errorf("expected anchor %s, got %s", draft.ID, attempt.ConsultationID)
	}
	if attempt.Links.UniversalURL == "" || attempt.Links.SchemeURL == "" {
		t.Error("expected both link forms in the response")
	}
}

func TestStartHandoff_MissingIdentity(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.StartHandoff(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without clinic identity, got %v", err)
	}
}

func TestReturn_AppliesOutcome(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	attempt, _ := svc.StartAttempt(context.Background(), testOwner(), nil)
	patientID := uuid.New()

	e := echo.New()
	target := "/?mode=identify&consultation_id=" + attempt.ConsultationID.String() +
		"&found=true&user_id=" + patientID.String()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Return(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var outcome ReturnOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !outcome.Identified || outcome.PatientID != patientID {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestRegisterRoutes_ReturnBypassesAuth(t *testing.T) {
	svc, anchor := newTestService()
	h := NewHandler(svc)
	attempt, _ := svc.StartAttempt(context.Background(), testOwner(), nil)
	patientID := uuid.New()

	e := echo.New()
	api := e.Group("/api/v1", auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte("test-signing-key")}))
	public := e.Group("/api/v1")
	h.RegisterRoutes(api, public)

	// The scanner resumes the browser with a bare navigation: query params
	// only, no Authorization header.
	target := "/api/v1/handoff/return?mode=identify&consultation_id=" + attempt.ConsultationID.String() +
		"&found=true&user_id=" + patientID.String()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the return navigation, got %d", rec.Code)
	}
	if anchor.status != consultation.StatusPendingRights {
		t.Errorf("expected the return to reach the anchor, status is %s", anchor.status)
	}

	// Starting a handoff stays behind the token check.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/consultations/"+attempt.ConsultationID.String()+"/handoff", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestReturn_MalformedMapsTo400(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?mode=identify", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Return(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed return, got %v", err)
	}
}

func TestReturn_StaleMapsTo400(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	attempt, _ := svc.StartAttempt(context.Background(), testOwner(), nil)

	first := returnParams(attempt.ConsultationID, map[string]string{
		"found": "true", "user_id": uuid.New().String(),
	})
	if _, err := svc.ApplyReturn(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	target := "/?mode=identify&consultation_id=" + attempt.ConsultationID.String() +
		"&found=true&user_id=" + uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Return(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for stale return, got %v", err)
	}
}
