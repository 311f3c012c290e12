package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatus      = errors.New("invalid status")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}
