package handoff

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testRequest() HandoffRequest {
	consID := uuid.New()
	return HandoffRequest{
		ClinicID:       uuid.New(),
		OperatorID:     uuid.New(),
		ConsultationID: &consID,
		AttemptNonce:   uuid.New(),
		ReturnOrigin:   "https://portal.example.com",
		ReturnPath:     "/api/v1/handoff/return",
	}
}

func TestBuild_BothFormsCarryIdenticalParams(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app", "clinsurascan")
	req := testRequest()

	links, err := b.Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	universal, err := url.Parse(links.UniversalURL)
	if err != nil {
		t.Fatalf("universal link does not parse: %v", err)
	}
	schemeQuery := links.SchemeURL[strings.Index(links.SchemeURL, "?")+1:]
	schemeParams, err := url.ParseQuery(schemeQuery)
	if err != nil {
		t.Fatalf("scheme link query does not parse: %v", err)
	}

	uq := universal.Query()
	if len(uq) != len(schemeParams) {
		t.Fatalf("param count differs: universal %d, scheme %d", len(uq), len(schemeParams))
	}
	for key := range uq {
		if uq.Get(key) != schemeParams.Get(key) {
			t.Errorf("param %s differs: %q vs %q", key, uq.Get(key), schemeParams.Get(key))
		}
	}

	if uq.Get("mode") != "identify" {
		t.Errorf("expected mode=identify, got %q", uq.Get("mode"))
	}
	if uq.Get("consultation_id") != req.ConsultationID.String() {
		t.Errorf("expected consultation_id %s, got %q", req.ConsultationID, uq.Get("consultation_id"))
	}
	if uq.Get("redirect_origin") != req.ReturnOrigin {
		t.Errorf("expected redirect_origin %q, got %q", req.ReturnOrigin, uq.Get("redirect_origin"))
	}
	if uq.Get("redirect_path") != req.ReturnPath {
		t.Errorf("expected redirect_path %q, got %q", req.ReturnPath, uq.Get("redirect_path"))
	}
}

func TestBuild_LinkShapes(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app/", "clinsurascan")

	links, err := b.Build(testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(links.UniversalURL, "https://scan.clinsura.app/app/identify?") {
		t.Errorf("unexpected universal link shape: %s", links.UniversalURL)
	}
	if !strings.HasPrefix(links.SchemeURL, "clinsurascan://identify?") {
		t.Errorf("unexpected scheme link shape: %s", links.SchemeURL)
	}
}

func TestBuild_MissingIdentityRejected(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app", "clinsurascan")

	noClinic := testRequest()
	noClinic.ClinicID = uuid.Nil
	if _, err := b.Build(noClinic); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters without clinic id, got %v", err)
	}

	noOperator := testRequest()
	noOperator.OperatorID = uuid.Nil
	if _, err := b.Build(noOperator); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters without operator id, got %v", err)
	}
}

func TestBuild_ReturnOriginWellFormedness(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app", "clinsurascan")

	relative := testRequest()
	relative.ReturnOrigin = "portal.example.com"
	if _, err := b.Build(relative); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters for relative origin, got %v", err)
	}

	// A private-network origin is valid: the builder checks well-formedness,
	// never reachability.
	private := testRequest()
	private.ReturnOrigin = "http://192.168.1.50:3000"
	if _, err := b.Build(private); err != nil {
		t.Errorf("expected private-network origin to be accepted, got %v", err)
	}
}

func TestBuild_UnsupportedModeRejected(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app", "clinsurascan")

	req := testRequest()
	req.Mode = "enroll"
	if _, err := b.Build(req); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters for unsupported mode, got %v", err)
	}
}

func TestBuild_OmitsAbsentOptionals(t *testing.T) {
	b := NewBuilder("https://scan.clinsura.app/app", "clinsurascan")

	req := testRequest()
	req.ConsultationID = nil
	req.AttemptNonce = uuid.Nil

	links, err := b.Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(links.UniversalURL)
	if u.Query().Has("consultation_id") {
		t.Error("expected consultation_id to be omitted when no draft exists")
	}
	if u.Query().Has("attempt_nonce") {
		t.Error("expected attempt_nonce to be omitted when unset")
	}
}
