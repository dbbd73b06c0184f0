package consultation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no consultation matches the given id.
	ErrNotFound = errors.New("consultation not found")

	// ErrDraftCreationFailed wraps a storage failure during draft creation.
	// Callers must not build a scanner deeplink when they see it.
	ErrDraftCreationFailed = errors.New("draft creation failed")

	// ErrIncompleteConsultation is returned by Submit when no act is present.
	ErrIncompleteConsultation = errors.New("consultation has no acts")

	// ErrInvalidAmount is returned by Submit when the declared amount is
	// missing or not positive.
	ErrInvalidAmount = errors.New("declared amount must be positive")

	// ErrMissingClinicalContent is returned by Submit when neither symptoms
	// nor diagnosis carry text or a drawing.
	ErrMissingClinicalContent = errors.New("symptoms or diagnosis required")

	// ErrNotOwner is returned when a caller from another clinic touches a
	// consultation.
	ErrNotOwner = errors.New("consultation belongs to another clinic")
)

// IllegalTransitionError reports a lifecycle move outside the transition
// table. The current status is never coerced.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}
