package consultation

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows consultation lists. Zero values mean "no filter".
type ListFilter struct {
	ClinicID uuid.UUID
	DoctorID uuid.UUID
	Status   Status
}

type Repository interface {
	Create(ctx context.Context, cons *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, cons *Consultation) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error)

	// Acts
	ReplaceActs(ctx context.Context, consultationID uuid.UUID, acts []*Act) error
	GetActs(ctx context.Context, consultationID uuid.UUID) ([]*Act, error)

	// Medications
	ReplaceMedications(ctx context.Context, consultationID uuid.UUID, meds []*Medication) error
	GetMedications(ctx context.Context, consultationID uuid.UUID) ([]*Medication, error)

	// Status History
	AddStatusHistory(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, consultationID uuid.UUID) ([]*StatusChange, error)
}
