package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

// Patient is the local cache of an identity the scanner application can
// match. The biometric templates themselves live in the scanner's own store;
// this side only keeps what the portal needs to display and bill.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	NationalIdentifier *string    `db:"national_identifier" json:"national_identifier,omitempty"`
	InsuranceNumber    *string    `db:"insurance_number" json:"insurance_number,omitempty"`
	FullName           string     `db:"full_name" json:"full_name"`
	BirthDate          *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	InsurerID          *string    `db:"insurer_id" json:"insurer_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
