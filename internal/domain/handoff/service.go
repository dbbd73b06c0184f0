package handoff

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsura/portal-api/internal/domain/consultation"
)

// ErrStaleReturn is returned when a scanner outcome arrives for a consultation
// that has already left draft. The row is untouched; the return is dropped.
var ErrStaleReturn = errors.New("stale return: consultation is no longer a draft")

// Anchor is the slice of the consultation lifecycle the handoff needs: a
// durable draft to hang the attempt on, and the two identification outcomes.
type Anchor interface {
	EnsureDraft(ctx context.Context, owner consultation.OwnerContext, existing *uuid.UUID) (*consultation.Consultation, error)
	StampAttempt(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	ApplyIdentification(ctx context.Context, id, patientID uuid.UUID) error
	ApplyIdentificationFailure(ctx context.Context, id uuid.UUID) error
}

// Attempt is what the clinic UI receives when it starts a handoff: the anchor
// id and both link forms to hand control to the scanner.
type Attempt struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	Links          Links     `json:"links"`
}

type Service struct {
	anchor       Anchor
	builder      *Builder
	returnOrigin string
	returnPath   string
	log          zerolog.Logger
}

func NewService(anchor Anchor, builder *Builder, returnOrigin, returnPath string, logger zerolog.Logger) *Service {
	return &Service{
		anchor:       anchor,
		builder:      builder,
		returnOrigin: returnOrigin,
		returnPath:   returnPath,
		log:          logger,
	}
}

// StartAttempt anchors an identification attempt on the given draft and
// returns the deeplinks. The draft is persisted and stamped with a fresh nonce
// before any link exists, so a scanner that never comes back costs nothing and
// a scanner that does always finds its row.
func (s *Service) StartAttempt(ctx context.Context, owner consultation.OwnerContext, existing *uuid.UUID) (*Attempt, error) {
	cons, err := s.anchor.EnsureDraft(ctx, owner, existing)
	if err != nil {
		return nil, err
	}
	nonce, err := s.anchor.StampAttempt(ctx, cons.ID)
	if err != nil {
		return nil, err
	}

	links, err := s.builder.Build(HandoffRequest{
		Mode:           ModeIdentify,
		ClinicID:       owner.ClinicID,
		OperatorID:     owner.DoctorID,
		ConsultationID: &cons.ID,
		AttemptNonce:   nonce,
		ReturnOrigin:   s.returnOrigin,
		ReturnPath:     s.returnPath,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("consultation_id", cons.ID.String()).
		Str("clinic_id", owner.ClinicID.String()).
		Msg("identification handoff started")

	return &Attempt{ConsultationID: cons.ID, Links: links}, nil
}

// ApplyReturn interprets the scanner's return parameters and updates the
// anchored consultation. Malformed parameters touch nothing; a return for a
// consultation that already moved on is rejected as stale. When two handoffs
// for the same draft are in flight, the last return processed wins.
func (s *Service) ApplyReturn(ctx context.Context, params url.Values) (*ReturnOutcome, error) {
	outcome, err := ParseReturn(params)
	if err != nil {
		return nil, err
	}

	if outcome.Identified {
		err = s.anchor.ApplyIdentification(ctx, outcome.ConsultationID, outcome.PatientID)
	} else {
		err = s.anchor.ApplyIdentificationFailure(ctx, outcome.ConsultationID)
	}
	if err != nil {
		var illegal *consultation.IllegalTransitionError
		if errors.As(err, &illegal) {
			return nil, fmt.Errorf("%w: %v", ErrStaleReturn, err)
		}
		return nil, err
	}

	s.log.Info().
		Str("consultation_id", outcome.ConsultationID.String()).
		Bool("identified", outcome.Identified).
		Msg("scanner return applied")

	return outcome, nil
}
