package engine

import (
	"errors"
	"fmt"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/repo"
)

// ErrNotFound is re-exported so callers can branch without importing repo.
var ErrNotFound = repo.ErrNotFound

// ErrConcurrentModification is returned when the stored status or version no
// longer matches what the operation read. Safe to retry once after a re-read.
var ErrConcurrentModification = repo.ErrConcurrentModification

// InvalidTransitionError means the permission table denied the attempted
// (role, status, action) combination.
type InvalidTransitionError struct {
	Role   domain.Role
	Status domain.Status
	Action domain.Action
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s a deliverable in status %s", e.Role, e.Action, e.Status)
}

// ValidationError means a required field failed a payload rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsInvalidTransition reports whether err is a guard rejection.
func IsInvalidTransition(err error) bool {
	var ite InvalidTransitionError
	return errors.As(err, &ite)
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
