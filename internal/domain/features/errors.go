package features

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInputValidation   = errors.New("input validation failed")
	ErrUnknownFeature    = errors.New("unknown feature")
	ErrVersionMismatch   = errors.New("version mismatch")
	ErrRateStoreMismatch = errors.New("rate store lacks a queried grouping")
)

// ValidationError describes the first malformed field of a raw event.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s %q: %s", ErrInputValidation, e.Field, e.Value, e.Reason)
}

// Unwrap lets callers match ErrInputValidation with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrInputValidation }
