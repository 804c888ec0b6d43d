package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist,
	// has expired, or is not visible to the caller. Ownership
	// mismatches deliberately look identical to absence.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-swap transition finds
	// the stored status differs from the expected one. Under
	// at-least-once delivery this is routine, not a failure.
	ErrConflict = errors.New("status conflict")

	// ErrInvalidTransition is returned when the requested transition is
	// not permitted by the job state machine, for example out of a
	// terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobNotFound indicates the requested job does not exist or has expired.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrSnapshotNotFound indicates no persisted tag snapshot exists yet.
	ErrSnapshotNotFound = fmt.Errorf("%w: tag snapshot", ErrNotFound)
)

// IsNotFound checks if the error is any kind of "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a compare-and-swap conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
