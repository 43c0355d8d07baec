package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrJourneyNotFound indicates a journey document was not found by name.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrInvalidJourneyDocument indicates a document failed schema or
	// semantic validation.
	ErrInvalidJourneyDocument = errors.New("invalid journey document")
)

// JourneyError wraps journey storage errors with additional context.
type JourneyError struct {
	Op      string // Operation being performed (e.g., "ByName", "All")
	Journey string // Journey name if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *JourneyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for journey %s: %s (%v)", e.Op, e.Journey, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for journey %s: %v", e.Op, e.Journey, e.Err)
}

func (e *JourneyError) Unwrap() error {
	return e.Err
}
