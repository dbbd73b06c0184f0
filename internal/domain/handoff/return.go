package handoff

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ErrMalformedReturn is returned when the parameters delivered by the scanner
// do not parse. The anchored draft is untouched and the operator may retry the
// handoff against the same consultation.
var ErrMalformedReturn = errors.New("malformed return parameters")

// ReturnOutcome is the classified result of a scanner return navigation.
// Exactly one of the identified / not-identified interpretations applies;
// anything else fails parsing with ErrMalformedReturn.
type ReturnOutcome struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	Identified     bool      `json:"identified"`
	PatientID      uuid.UUID `json:"patient_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// ParseReturn classifies the query parameters the scanner application sends
// back. Accepted shapes:
//
//	found=true&user_id=<id>   -> identified
//	found=false               -> not identified
//	error=<code>              -> not identified, code kept as reason
//	notfound=true             -> not identified (legacy scanner builds)
//
// The consultation_id echoed by the scanner is the anchor: it names the row
// the outcome attaches to.
func ParseReturn(params url.Values) (*ReturnOutcome, error) {
	if params.Get("mode") != ModeIdentify {
		return nil, fmt.Errorf("%w: unexpected mode %q", ErrMalformedReturn, params.Get("mode"))
	}
	consID, err := uuid.Parse(params.Get("consultation_id"))
	if err != nil {
		return nil, fmt.Errorf("%w: missing or invalid consultation_id", ErrMalformedReturn)
	}

	outcome := &ReturnOutcome{ConsultationID: consID}

	switch {
	case params.Get("found") == "true":
		patientID, err := uuid.Parse(params.Get("user_id"))
		if err != nil {
			return nil, fmt.Errorf("%w: found=true without a usable user_id", ErrMalformedReturn)
		}
		outcome.Identified = true
		outcome.PatientID = patientID
	case params.Get("found") == "false":
		outcome.Reason = params.Get("error")
	case params.Get("error") != "":
		outcome.Reason = params.Get("error")
	case params.Get("notfound") == "true":
		// Legacy scanner builds signal a miss this way.
	default:
		return nil, fmt.Errorf("%w: no recognizable outcome signal", ErrMalformedReturn)
	}

	return outcome, nil
}
