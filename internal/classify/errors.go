package classify

import (
	"errors"
	"fmt"
)

// Validation failure codes, stable across the status boundary.
const (
	CodeNoHorizonTag         = "NO_HORIZON_TAG"
	CodeNoPracticeTag        = "NO_PRACTICE_TAG"
	CodeEmptyCandidateSet    = "EMPTY_CANDIDATE_SET"
	CodeConfidenceOutOfRange = "CONFIDENCE_OUT_OF_RANGE"
)

// ValidationError reports that a candidate set failed the hard
// classification rules. Validation errors are never retried; the
// upstream classifier under-delivered for this document.
type ValidationError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsValidationError unwraps err into a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Errors returned by classification boundary implementations.
var (
	// ErrTransient marks failures worth retrying (source unreachable,
	// rate limited, model overloaded).
	ErrTransient = errors.New("transient classification error")

	// ErrContentBlocked is returned when the model refuses the content.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse is returned when the model output cannot be
	// parsed into candidates.
	ErrInvalidResponse = errors.New("invalid classification response")

	// ErrEmptyDocument is returned for empty input text.
	ErrEmptyDocument = errors.New("document text cannot be empty")

	// ErrInvalidConfig is returned when a classifier is constructed
	// with incomplete configuration.
	ErrInvalidConfig = errors.New("invalid classifier configuration")
)
