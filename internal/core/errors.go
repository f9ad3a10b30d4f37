package core

import (
	"errors"
	"fmt"
)

// Pipeline errors. Callers match them with errors.Is; messages are wrapped
// with the failing step.
var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an authorization-scoped lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller has no usable identity.
	ErrUnauthorized = errors.New("unauthorized")

	ErrStorageFailure       = errors.New("storage failure")
	ErrEmbeddingFailure     = errors.New("embedding failure")
	ErrModelCallFailure     = errors.New("model call failure")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrIngestionFailure     = errors.New("ingestion failure")

	// ErrSchemaMissing indicates the backing table does not exist at all.
	ErrSchemaMissing = errors.New("schema missing")

	// ErrSchemaMismatch is absorbed by the conversation store fallback chain
	// and only surfaces once every strategy is exhausted.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDuplicateJob reports a uniqueness violation on insert; the scrape
	// orchestrator resolves it by re-reading the winner.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrAlreadyProcessing reports a live processing claim held by another run.
	ErrAlreadyProcessing = errors.New("document is already processing")
)

// UnknownColumnError reports a column the table does not have.
type UnknownColumnError struct {
	Column string
	Err    error
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q: %v", e.Column, e.Err)
}

func (e *UnknownColumnError) Unwrap() []error { return []error{ErrSchemaMismatch, e.Err} }

// NotNullViolationError reports a NOT NULL column left empty by an insert.
type NotNullViolationError struct {
	Column string
	Err    error
}

func (e *NotNullViolationError) Error() string {
	return fmt.Sprintf("column %q must not be null: %v", e.Column, e.Err)
}

func (e *NotNullViolationError) Unwrap() []error { return []error{ErrSchemaMismatch, e.Err} }

// Validationf builds an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
