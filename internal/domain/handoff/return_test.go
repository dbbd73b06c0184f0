package handoff

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/uuid"
)

func returnParams(consID uuid.UUID, extra map[string]string) url.Values {
	params := url.Values{}
	params.Set("mode", "identify")
	params.Set("consultation_id", consID.String())
	for k, v := range extra {
		params.Set(k, v)
	}
	return params
}

func TestParseReturn_Identified(t *testing.T) {
	consID := uuid.New()
	patientID := uuid.New()

	outcome, err := ParseReturn(returnParams(consID, map[string]string{
		"found":   "true",
		"user_id": patientID.String(),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Identified {
		t.Error("expected identified outcome")
	}
	if outcome.ConsultationID != consID {
		t.Errorf("expected consultation %s, got %s", consID, outcome.ConsultationID)
	}
	if outcome.PatientID != patientID {
		t.Errorf("expected patient %s, got %s", patientID, outcome.PatientID)
	}
}

func TestParseReturn_NotFound(t *testing.T) {
	outcome, err := ParseReturn(returnParams(uuid.New(), map[string]string{"found": "false"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Identified {
		t.Error("expected not-identified outcome")
	}
	if outcome.PatientID != uuid.Nil {
		t.Error("expected no patient identity on a miss")
	}
}

func TestParseReturn_UpstreamError(t *testing.T) {
	outcome, err := ParseReturn(returnParams(uuid.New(), map[string]string{"error": "sensor_timeout"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Identified {
		t.Error("expected not-identified outcome on upstream error")
	}
	if outcome.Reason != "sensor_timeout" {
		t.Errorf("expected reason sensor_timeout, got %q", outcome.Reason)
	}
}

func TestParseReturn_LegacyNotFound(t *testing.T) {
	outcome, err := ParseReturn(returnParams(uuid.New(), map[string]string{"notfound": "true"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Identified {
		t.Error("expected legacy notfound=true to mean not identified")
	}
}

func TestParseReturn_Malformed(t *testing.T) {
	consID := uuid.New()

	tests := []struct {
		name   string
		params url.Values
	}{
		{"wrong mode", func() url.Values {
			p := returnParams(consID, map[string]string{"found": "true", "user_id": uuid.New().String()})
			p.Set("mode", "enroll")
			return p
		}()},
		{"missing consultation_id", func() url.Values {
			p := returnParams(consID, map[string]string{"found": "false"})
			p.Del("consultation_id")
			return p
		}()},
		{"found=true without user_id", returnParams(consID, map[string]string{"found": "true"})},
		{"found=true with junk user_id", returnParams(consID, map[string]string{"found": "true", "user_id": "patient-42"})},
		{"no outcome signal", returnParams(consID, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReturn(tt.params); !errors.Is(err, ErrMalformedReturn) {
				t.Errorf("expected ErrMalformedReturn, got %v", err)
			}
		})
	}
}
