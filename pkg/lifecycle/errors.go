package lifecycle

import (
	"fmt"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// StageError is returned when a stage fails. The run halts in the Failed
// state; Code classifies the cause.
type StageError struct {
	Stage Stage
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Code returns the error code of the cause, CANCELED for context
// cancellation and INTERNAL_ERROR for unclassified failures.
func (e *StageError) Code() errors.Code {
	if c := errors.GetCode(e.Cause); c != "" {
		return c
	}
	return errors.ErrCodeInternal
}
