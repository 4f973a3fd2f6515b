package domain

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEvent      = errors.New("payment event already processed")
	ErrUnauthenticated     = errors.New("event authentication failed")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflicting state")
)

// ValidationError names the offending field; it matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
