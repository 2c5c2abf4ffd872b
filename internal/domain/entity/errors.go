package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrAlreadyExists indicates a unique-key conflict on insert.
	// The pipeline treats it as "already ingested", not as a failure.
	ErrAlreadyExists = errors.New("already exists")
)

// Pipeline error taxonomy. Every failure a run can observe is one of these,
// wrapped with context by the layer that produced it.
var (
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport error")

	// ErrParse indicates a malformed document: undecodable XML or JSON.
	ErrParse = errors.New("parse error")

	// ErrContentShape indicates an AI reply that could not be repaired into
	// the expected JSON shape.
	ErrContentShape = errors.New("content shape error")

	// ErrConfiguration indicates missing credentials or an invalid task
	// configuration. The affected phase is disabled, the run continues.
	ErrConfiguration = errors.New("configuration error")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
