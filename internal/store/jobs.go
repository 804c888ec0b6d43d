package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/classifier-api/internal/domain"
)

// TransitionPatch carries the fields a status transition may set
// alongside the status change itself.
type TransitionPatch struct {
	Progress *domain.Progress
	Result   *domain.ClassificationResult
	Error    *domain.JobError
}

// JobStore defines the interface for persisting classification jobs.
//
// Transition is the only write path for job status: it is a
// compare-and-swap on the expected prior status, so two workers racing
// on the same job see exactly one success and one ErrConflict. Expired
// jobs are invisible to every method except Expire.
type JobStore interface {
	// Create persists a new job record.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID without ownership filtering.
	// Returns ErrJobNotFound if absent or expired.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// GetForOwner retrieves a job by ID on behalf of the given owner.
	// An ownership mismatch is reported as ErrJobNotFound, never as a
	// distinct error, so callers cannot probe for other owners' jobs.
	GetForOwner(ctx context.Context, id uuid.UUID, ownerKeyHash string) (*domain.Job, error)

	// Transition performs a compare-and-swap status change. It fails
	// with ErrConflict when the stored status differs from "from",
	// ErrInvalidTransition when the state machine forbids the edge,
	// and ErrJobNotFound when the job is absent or expired. Terminal
	// transitions stamp TerminalAt and attach the patch result/error.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, patch TransitionPatch) (*domain.Job, error)

	// UpdateProgress patches the progress of a processing job. Returns
	// ErrConflict if the job is not in processing status.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress domain.Progress) error

	// Expire removes every job whose TTL has passed at the given time
	// and returns the removed records so callers can release
	// associated resources (temporary document blobs).
	Expire(ctx context.Context, now time.Time) ([]*domain.Job, error)

	// ListUnfinished returns every non-expired job still in pending or
	// processing status. Used at startup to recover work that was
	// queued or in flight when the previous process stopped.
	ListUnfinished(ctx context.Context) ([]*domain.Job, error)
}
