package statemigration

import (
	"errors"
	"fmt"
)

// StepNotFoundError is returned when no step is registered for
// FromVersion -> FromVersion+1.
type StepNotFoundError struct {
	FromVersion int
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("no migration step registered for state schema v%d -> v%d", e.FromVersion, e.FromVersion+1)
}

// IsStepNotFound returns true if err is (or wraps) a StepNotFoundError.
func IsStepNotFound(err error) bool {
	var e *StepNotFoundError
	return errors.As(err, &e)
}

// VersionMismatchError is returned when a caller asks to advance a state
// from a version other than the one it is recorded at.
type VersionMismatchError struct {
	Recorded  int
	Requested int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("state is at schema version %d, cannot advance from %d", e.Recorded, e.Requested)
}

// IsVersionMismatch returns true if err is (or wraps) a VersionMismatchError.
func IsVersionMismatch(err error) bool {
	var e *VersionMismatchError
	return errors.As(err, &e)
}
