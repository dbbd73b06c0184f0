package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnsureDraft guarantees a draft consultation exists before a scanner
// handoff. When existing names a consultation still in draft and owned by the
// caller's clinic it is returned unchanged; in every other case a fresh draft
// is created so an id is never reused across lifecycles.
func (s *Service) EnsureDraft(ctx context.Context, owner OwnerContext, existing *uuid.UUID) (*Consultation, error) {
	if owner.ClinicID == uuid.Nil || owner.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner context incomplete", ErrDraftCreationFailed)
	}

	if existing != nil {
		cons, err := s.repo.GetByID(ctx, *existing)
		if err == nil && cons.Status == StatusDraft && cons.ClinicID == owner.ClinicID {
			return cons, nil
		}
	}

	cons := &Consultation{
		ClinicID: owner.ClinicID,
		DoctorID: owner.DoctorID,
		Status:   StatusDraft,
	}
	if err := s.repo.Create(ctx, cons); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDraftCreationFailed, err)
	}
	return cons, nil
}

// StampAttempt writes a fresh nonce on the consultation right before a
// deeplink is built. Stamping consumes any prior attempt.
func (s *Service) StampAttempt(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if cons.Status != StatusDraft {
		return uuid.Nil, &IllegalTransitionError{From: cons.Status, To: StatusDraft}
	}

	nonce := uuid.New()
	now := time.Now().UTC()
	cons.AttemptNonce = &nonce
	cons.AttemptStartedAt = &now
	if err := s.repo.Update(ctx, cons); err != nil {
		return uuid.Nil, fmt.Errorf("stamp attempt: %w", err)
	}
	return nonce, nil
}

// Get loads a consultation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

// Detail bundles a consultation with its acts and medications.
type Detail struct {
	Consultation *Consultation `json:"consultation"`
	Acts         []*Act        `json:"acts"`
	Medications  []*Medication `json:"medications"`
	Provisional  bool          `json:"provisional_pricing"`
}

// GetDetail loads a consultation together with its acts and medications.
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	acts, err := s.repo.GetActs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load acts: %w", err)
	}
	meds, err := s.repo.GetMedications(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	return &Detail{
		Consultation: cons,
		Acts:         acts,
		Medications:  meds,
		Provisional:  cons.ProvisionalPricing(),
	}, nil
}

// ClinicalUpdate is the editable payload of a consultation. Nil fields are
// left untouched; acts and medications replace the full set when present.
type ClinicalUpdate struct {
	Symptoms         *string       `json:"symptoms,omitempty"`
	SymptomsDrawing  *string       `json:"symptoms_drawing,omitempty"`
	Diagnosis        *string       `json:"diagnosis,omitempty"`
	DiagnosisDrawing *string       `json:"diagnosis_drawing,omitempty"`
	DeclaredAmount   *int64        `json:"declared_amount,omitempty"`
	Acts             []*Act        `json:"acts,omitempty"`
	Medications      []*Medication `json:"medications,omitempty"`
}

// SaveClinical updates the clinical payload. Allowed only while the
// consultation is editable (draft or pending_rights) and only by its clinic.
func (s *Service) SaveClinical(ctx context.Context, id uuid.UUID, owner OwnerContext, upd ClinicalUpdate) (*Consultation, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cons.ClinicID != owner.ClinicID {
		return nil, ErrNotOwner
	}
	if cons.Status != StatusDraft && cons.Status != StatusPendingRights {
		return nil, &IllegalTransitionError{From: cons.Status, To: cons.Status}
	}

	if upd.Symptoms != nil {
		cons.Symptoms = upd.Symptoms
	}
	if upd.SymptomsDrawing != nil {
		cons.SymptomsDrawing = upd.SymptomsDrawing
	}
	if upd.Diagnosis != nil {
		cons.Diagnosis = upd.Diagnosis
	}
	if upd.DiagnosisDrawing != nil {
		cons.DiagnosisDrawing = upd.DiagnosisDrawing
	}
	if upd.DeclaredAmount != nil {
		cons.DeclaredAmount = upd.DeclaredAmount
	}

	if err := s.repo.Update(ctx, cons); err != nil {
		return nil, fmt.Errorf("save clinical payload: %w", err)
	}
	if upd.Acts != nil {
		if err := s.repo.ReplaceActs(ctx, id, upd.Acts); err != nil {
			return nil, fmt.Errorf("save acts: %w", err)
		}
	}
	if upd.Medications != nil {
		if err := s.repo.ReplaceMedications(ctx, id, upd.Medications); err != nil {
			return nil, fmt.Errorf("save medications: %w", err)
		}
	}
	return cons, nil
}

// Submit validates the consultation and sends it to the insurer
// (draft/pending_rights -> sent). Validation failures write nothing.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, owner OwnerContext) (*Consultation, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cons.ClinicID != owner.ClinicID {
		return nil, ErrNotOwner
	}
	if !CanTransition(cons.Status, StatusSent) {
		return nil, &IllegalTransitionError{From: cons.Status, To: StatusSent}
	}

	acts, err := s.repo.GetActs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load acts: %w", err)
	}
	if len(acts) == 0 {
		return nil, ErrIncompleteConsultation
	}
	if cons.DeclaredAmount == nil || *cons.DeclaredAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !hasClinicalContent(cons) {
		return nil, ErrMissingClinicalContent
	}

	if err := s.transition(ctx, cons, StatusSent, owner.DoctorID.String()); err != nil {
		return nil, err
	}
	return cons, nil
}

// hasClinicalContent reports whether symptoms or diagnosis carry text or a
// drawing.
func hasClinicalContent(c *Consultation) bool {
	for _, f := range []*string{c.Symptoms, c.SymptomsDrawing, c.Diagnosis, c.DiagnosisDrawing} {
		if f != nil && *f != "" {
			return true
		}
	}
	return false
}

// Relaunch resets a rejected consultation so the clinic can rework and resend
// it. A distinct operation, deliberately outside the transition table.
func (s *Service) Relaunch(ctx context.Context, id uuid.UUID, owner OwnerContext) (*Consultation, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cons.ClinicID != owner.ClinicID {
		return nil, ErrNotOwner
	}
	if cons.Status != StatusRejected {
		return nil, &IllegalTransitionError{From: cons.Status, To: StatusDraft}
	}

	from := cons.Status
	cons.Status = StatusDraft
	cons.RejectionReason = nil
	if err := s.repo.Update(ctx, cons); err != nil {
		return nil, fmt.Errorf("relaunch: %w", err)
	}
	if err := s.recordHistory(ctx, cons.ID, from, StatusDraft, owner.DoctorID.String()); err != nil {
		return nil, fmt.Errorf("add status history: %w", err)
	}
	return cons, nil
}

// ApplyIdentification records a confirmed biometric identification:
// the patient is attached and the draft moves to pending_rights.
func (s *Service) ApplyIdentification(ctx context.Context, id, patientID uuid.UUID) error {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cons.Status != StatusDraft {
		return &IllegalTransitionError{From: cons.Status, To: StatusPendingRights}
	}

	cons.PatientID = &patientID
	cons.BiometricVerified = true
	cons.FingerprintMissing = false
	return s.transition(ctx, cons, StatusPendingRights, "scanner")
}

// ApplyIdentificationFailure records that the scanner could not identify the
// patient. The consultation stays in draft with the fingerprint-missing flag
// set; the clinic proceeds without insurer pricing.
func (s *Service) ApplyIdentificationFailure(ctx context.Context, id uuid.UUID) error {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cons.Status != StatusDraft {
		return &IllegalTransitionError{From: cons.Status, To: StatusDraft}
	}

	cons.FingerprintMissing = true
	if err := s.repo.Update(ctx, cons); err != nil {
		return fmt.Errorf("record identification failure: %w", err)
	}
	return nil
}

// ApplyRightsOutcome writes the insurer's coverage split and hands the
// consultation back to the clinic (pending_rights -> draft). Remote amounts
// override whatever was entered locally.
func (s *Service) ApplyRightsOutcome(ctx context.Context, id uuid.UUID, insurerAmount, patientAmount int64, insurerID string, actor uuid.UUID) error {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cons.Status != StatusPendingRights {
		return &IllegalTransitionError{From: cons.Status, To: StatusDraft}
	}

	total := insurerAmount + patientAmount
	now := time.Now().UTC()

	cons.InsurerAmount = &insurerAmount
	cons.PatientAmount = &patientAmount
	cons.TotalAmount = &total
	cons.InsurerID = &insurerID
	cons.RightsCheckedAt = &now
	cons.RightsCheckedBy = &actor
	if cons.DeclaredAmount != nil {
		delta := total - *cons.DeclaredAmount
		cons.AmountDelta = &delta
	}

	return s.transition(ctx, cons, StatusDraft, actor.String())
}

// ApplyInsurerDecision applies the insurer's verdict on a sent consultation.
func (s *Service) ApplyInsurerDecision(ctx context.Context, id uuid.UUID, accepted bool, insurerAmount, patientAmount *int64, reason string) error {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	to := StatusRejected
	if accepted {
		to = StatusAccepted
	}
	if !CanTransition(cons.Status, to) {
		return &IllegalTransitionError{From: cons.Status, To: to}
	}

	if accepted {
		if insurerAmount != nil {
			cons.InsurerAmount = insurerAmount
		}
		if patientAmount != nil {
			cons.PatientAmount = patientAmount
		}
		if cons.InsurerAmount != nil && cons.PatientAmount != nil {
			total := *cons.InsurerAmount + *cons.PatientAmount
			cons.TotalAmount = &total
		}
	} else {
		cons.RejectionReason = &reason
	}

	return s.transition(ctx, cons, to, "insurer")
}

// ApplyPayment records the insurer payout (accepted -> paid).
func (s *Service) ApplyPayment(ctx context.Context, id uuid.UUID, paidAmount int64, reference string) error {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(cons.Status, StatusPaid) {
		return &IllegalTransitionError{From: cons.Status, To: StatusPaid}
	}

	cons.PaidAmount = &paidAmount
	if reference != "" {
		cons.PaymentReference = &reference
	}
	return s.transition(ctx, cons, StatusPaid, "insurer")
}

// List returns consultations matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// GetStatusHistory returns the full lifecycle trail of a consultation.
func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

// transition checks the table, persists the new status, and appends to the
// status history.
func (s *Service) transition(ctx context.Context, cons *Consultation, to Status, actor string) error {
	from := cons.Status
	if from != to && !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}

	cons.Status = to
	if err := s.repo.Update(ctx, cons); err != nil {
		cons.Status = from
		return fmt.Errorf("update status %s -> %s: %w", from, to, err)
	}
	if err := s.recordHistory(ctx, cons.ID, from, to, actor); err != nil {
		return fmt.Errorf("add status history: %w", err)
	}
	return nil
}

func (s *Service) recordHistory(ctx context.Context, id uuid.UUID, from, to Status, actor string) error {
	return s.repo.AddStatusHistory(ctx, &StatusChange{
		ConsultationID: id,
		FromStatus:     from,
		ToStatus:       to,
		Actor:          actor,
		ChangedAt:      time.Now().UTC(),
	})
}
