package rights

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsura/portal-api/internal/domain/consultation"
)

var (
	// ErrCheckInFlight means a check for this consultation is already
	// running. A second click is a no-op, never a duplicate remote call.
	ErrCheckInFlight = errors.New("rights check already in flight")

	// ErrRightsCheckFailed means the external call errored or timed out.
	// The consultation keeps its provisional amount; retrying is safe.
	ErrRightsCheckFailed = errors.New("rights check failed")

	// ErrNoPatientIdentity means the consultation has no confirmed patient
	// to check coverage for.
	ErrNoPatientIdentity = errors.New("no patient identity to check rights for")
)

// ConsultationStore is the slice of the consultation lifecycle the
// coordinator needs.
type ConsultationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	ApplyRightsOutcome(ctx context.Context, id uuid.UUID, insurerAmount, patientAmount int64, insurerID string, actor uuid.UUID) error
}

// Coordinator drives the coverage-verification step: one in-flight check per
// consultation, confirmed amounts written back on success, nothing touched on
// failure.
type Coordinator struct {
	store  ConsultationStore
	client Client
	log    zerolog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewCoordinator(store ConsultationStore, client Client, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		client:   client,
		log:      logger,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// CheckRights calls the insurer for the consultation's patient and, on
// success, writes the confirmed split back and hands the row to the clinic
// for re-review. Only one check per consultation runs at a time.
func (c *Coordinator) CheckRights(ctx context.Context, consultationID, actor uuid.UUID) (*CheckResult, error) {
	c.mu.Lock()
	if _, busy := c.inFlight[consultationID]; busy {
		c.mu.Unlock()
		return nil, ErrCheckInFlight
	}
	c.inFlight[consultationID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, consultationID)
		c.mu.Unlock()
	}()

	cons, err := c.store.Get(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if cons.Status != consultation.StatusPendingRights {
		return nil, &consultation.IllegalTransitionError{From: cons.Status, To: consultation.StatusDraft}
	}
	if cons.PatientID == nil {
		return nil, ErrNoPatientIdentity
	}

	result, err := c.client.Check(ctx, CheckRequest{
		PatientID:      *cons.PatientID,
		ClinicID:       cons.ClinicID,
		ConsultationID: cons.ID,
	})
	if err != nil {
		c.log.Warn().Err(err).
			Str("consultation_id", consultationID.String()).
			Msg("rights check failed, provisional amount stands")
		return nil, fmt.Errorf("%w: %v", ErrRightsCheckFailed, err)
	}

	if err := c.store.ApplyRightsOutcome(ctx, consultationID, result.InsurerAmount, result.PatientAmount, result.InsurerID, actor); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("consultation_id", consultationID.String()).
		Int64("insurer_amount", result.InsurerAmount).
		Int64("patient_amount", result.PatientAmount).
		Str("insurer_id", result.InsurerID).
		Msg("rights confirmed")

	return result, nil
}
