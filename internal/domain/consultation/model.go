package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Consultation maps to the consultation table.
type Consultation struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ClinicID uuid.UUID `db:"clinic_id" json:"clinic_id"`
	DoctorID uuid.UUID `db:"doctor_id" json:"doctor_id"`

	// PatientID is set only by a confirmed biometric identification.
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`

	Status Status `db:"status" json:"status"`

	Symptoms         *string `db:"symptoms" json:"symptoms,omitempty"`
	SymptomsDrawing  *string `db:"symptoms_drawing" json:"symptoms_drawing,omitempty"`
	Diagnosis        *string `db:"diagnosis" json:"diagnosis,omitempty"`
	DiagnosisDrawing *string `db:"diagnosis_drawing" json:"diagnosis_drawing,omitempty"`

	// Amounts are in minor currency units.
	DeclaredAmount *int64 `db:"declared_amount" json:"declared_amount,omitempty"`
	TotalAmount    *int64 `db:"total_amount" json:"total_amount,omitempty"`
	InsurerAmount  *int64 `db:"insurer_amount" json:"insurer_amount,omitempty"`
	PatientAmount  *int64 `db:"patient_amount" json:"patient_amount,omitempty"`
	AmountDelta    *int64 `db:"amount_delta" json:"amount_delta,omitempty"`

	BiometricVerified  bool       `db:"biometric_verified" json:"biometric_verified"`
	FingerprintMissing bool       `db:"fingerprint_missing" json:"fingerprint_missing"`
	RightsCheckedAt    *time.Time `db:"rights_checked_at" json:"rights_checked_at,omitempty"`
	RightsCheckedBy    *uuid.UUID `db:"rights_checked_by" json:"rights_checked_by,omitempty"`
	InsurerID          *string    `db:"insurer_id" json:"insurer_id,omitempty"`

	// Handoff anchor: a fresh nonce is stamped before each scanner handoff.
	AttemptNonce     *uuid.UUID `db:"attempt_nonce" json:"attempt_nonce,omitempty"`
	AttemptStartedAt *time.Time `db:"attempt_started_at" json:"attempt_started_at,omitempty"`

	RejectionReason *string `db:"rejection_reason" json:"rejection_reason,omitempty"`

	PaidAmount       *int64  `db:"paid_amount" json:"paid_amount,omitempty"`
	PaymentReference *string `db:"payment_reference" json:"payment_reference,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProvisionalPricing reports whether the displayed amounts are still
// provisional. Derived from status, never stored.
func (c *Consultation) ProvisionalPricing() bool {
	return c.Status == StatusPendingRights
}

// Act maps to the consultation_act table.
type Act struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	Code           string    `db:"code" json:"code"`
	Label          string    `db:"label" json:"label"`
	DeclaredPrice  int64     `db:"declared_price" json:"declared_price"`
}

// Medication maps to the consultation_medication table.
type Medication struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	Name           string    `db:"name" json:"name"`
	Dosage         *string   `db:"dosage" json:"dosage,omitempty"`
	Duration       *string   `db:"duration" json:"duration,omitempty"`
}

// StatusChange maps to the consultation_status_history table.
type StatusChange struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	FromStatus     Status    `db:"from_status" json:"from_status"`
	ToStatus       Status    `db:"to_status" json:"to_status"`
	Actor          string    `db:"actor" json:"actor"`
	ChangedAt      time.Time `db:"changed_at" json:"changed_at"`
}

// OwnerContext identifies the clinic and operator performing an operation.
// It is always passed explicitly; nothing reads it from ambient state.
type OwnerContext struct {
	ClinicID uuid.UUID
	DoctorID uuid.UUID
}
