package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError marks schema- or resolution-level failures: malformed
// operation lists, unknown operation ids, bad column references, rename
// collisions. The HTTP layer maps it to 400 at submission time; discovered
// during execution it becomes the job's terminal error like any other failure.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
