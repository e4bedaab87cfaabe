package verify

import "errors"

// ErrValidation matches every *ValidationError
var ErrValidation = errors.New("invalid verification request")

// ValidationError reports a missing or malformed field. Message is safe to
// return to API clients as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) true
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
