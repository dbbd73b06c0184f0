package handoff

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidParameters is returned when a deeplink cannot be built from the
// given request. The handoff must not proceed without a valid link.
var ErrInvalidParameters = errors.New("invalid handoff parameters")

// ModeIdentify is the only handoff mode the scanner application understands.
const ModeIdentify = "identify"

// HandoffRequest carries everything the scanner application needs to run an
// identification attempt and navigate back afterwards.
type HandoffRequest struct {
	Mode           string
	ClinicID       uuid.UUID
	OperatorID     uuid.UUID
	ConsultationID *uuid.UUID
	AttemptNonce   uuid.UUID
	ReturnOrigin   string
	ReturnPath     string
}

// Links holds the two equivalent forms of the same handoff request. The
// universal link works when the scanner app is not installed (it falls back to
// a web page); the scheme link is intercepted directly when it is. Both carry
// identical query parameters so either can stand in for the other.
type Links struct {
	UniversalURL string `json:"universal_url"`
	SchemeURL    string `json:"scheme_url"`
}

// Builder constructs scanner deeplinks. It never navigates; callers must
// persist the draft anchor before following either link, since the scanner is
// not guaranteed to come back.
type Builder struct {
	linkBase string
	scheme   string
}

func NewBuilder(linkBase, scheme string) *Builder {
	return &Builder{
		linkBase: strings.TrimRight(linkBase, "/"),
		scheme:   scheme,
	}
}

// Build produces both link forms for the request. It validates well-formedness
// only, never reachability: a private-network return origin is valid when the
// session itself runs on that network.
func (b *Builder) Build(req HandoffRequest) (Links, error) {
	if req.Mode == "" {
		req.Mode = ModeIdentify
	}
	if req.Mode != ModeIdentify {
		return Links{}, fmt.Errorf("%w: unsupported mode %q", ErrInvalidParameters, req.Mode)
	}
	if req.ClinicID == uuid.Nil {
		return Links{}, fmt.Errorf("%w: clinic id is required", ErrInvalidParameters)
	}
	if req.OperatorID == uuid.Nil {
		return Links{}, fmt.Errorf("%w: operator id is required", ErrInvalidParameters)
	}
	origin, err := url.Parse(req.ReturnOrigin)
	if err != nil || !origin.IsAbs() || origin.Host == "" {
		return Links{}, fmt.Errorf("%w: return origin %q is not an absolute URL", ErrInvalidParameters, req.ReturnOrigin)
	}
	if !strings.HasPrefix(req.ReturnPath, "/") {
		return Links{}, fmt.Errorf("%w: return path %q must start with /", ErrInvalidParameters, req.ReturnPath)
	}

	q := url.Values{}
	q.Set("mode", req.Mode)
	q.Set("clinic_id", req.ClinicID.String())
	q.Set("operator_id", req.OperatorID.String())
	if req.ConsultationID != nil {
		q.Set("consultation_id", req.ConsultationID.String())
	}
	if req.AttemptNonce != uuid.Nil {
		q.Set("attempt_nonce", req.AttemptNonce.String())
	}
	q.Set("redirect_origin", req.ReturnOrigin)
	q.Set("redirect_path", req.ReturnPath)
	encoded := q.Encode()

	return Links{
		UniversalURL: b.linkBase + "/identify?" + encoded,
		SchemeURL:    b.scheme + "://identify?" + encoded,
	}, nil
}
