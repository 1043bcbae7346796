package protocol

import "fmt"

// UnknownStageError indicates a stage name with no routing-table entry and no
// explicit agent override. It enables typed error discrimination via errors.As.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("stage %q has no routed agent and no override was given", e.Stage)
}

// MalformedMessageError indicates a message that failed structural validation:
// a missing required field or an unrecognized enum value.
type MalformedMessageError struct {
	Field  string
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: field %q: %s", e.Field, e.Reason)
}

// CollaboratorUnavailableError indicates an external collaborator (issue
// tracker, artifact store) could not be reached. Operations depending on the
// collaborator fail fast rather than hang.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Unwrap() error {
	return e.Err
}
