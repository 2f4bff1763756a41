package topics

import (
	"errors"
	"fmt"
)

// ErrCollaboratorUnavailable matches every failure of a resolver dependency.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// CollaboratorError names the dependency that failed during resolution.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCollaboratorUnavailable, e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

func unavailable(collaborator string, err error) error {
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}
