package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/classifier-api/internal/domain"
)

// MemoryJobStore is an in-memory JobStore used by tests and local
// development. All semantics match the persistent implementation:
// CAS transitions, ownership-blind not-found, TTL invisibility.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	// nowFn is injectable so tests can control TTL expiry.
	nowFn func() time.Time
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[uuid.UUID]*domain.Job),
		nowFn: time.Now,
	}
}

// SetNowFunc overrides the store's clock. Test use only.
func (s *MemoryJobStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// Create persists a new job record.
func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

// Get retrieves a job by ID.
func (s *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible(id)
}

// GetForOwner retrieves a job by ID for the given owner; mismatches
// look like absence.
func (s *MemoryJobStore) GetForOwner(ctx context.Context, id uuid.UUID, ownerKeyHash string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.visible(id)
	if err != nil {
		return nil, err
	}
	if job.OwnerKeyHash != ownerKeyHash {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Transition performs a compare-and-swap status change.
func (s *MemoryJobStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, patch TransitionPatch) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.ValidTransition(from, to) {
		return nil, ErrInvalidTransition
	}

	job, ok := s.jobs[id]
	if !ok || job.Expired(s.nowFn()) {
		return nil, ErrJobNotFound
	}

	if job.Status != from {
		return nil, ErrConflict
	}

	now := s.nowFn().UTC()
	job.Status = to
	job.UpdatedAt = now
	if patch.Progress != nil {
		job.Progress = patch.Progress
	}
	if to.IsTerminal() {
		terminalAt := now
		job.TerminalAt = &terminalAt
		job.Result = patch.Result
		job.Error = patch.Error
	}

	clone := *job
	return &clone, nil
}

// UpdateProgress patches the progress of a processing job.
func (s *MemoryJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Expired(s.nowFn()) {
		return ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrConflict
	}

	job.Progress = &progress
	job.UpdatedAt = s.nowFn().UTC()
	return nil
}

// Expire removes every job past its TTL and returns the removed records.
func (s *MemoryJobStore) Expire(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.Job
	for id, job := range s.jobs {
		if job.Expired(now) {
			clone := *job
			expired = append(expired, &clone)
			delete(s.jobs, id)
		}
	}
	return expired, nil
}

// ListUnfinished returns every non-expired pending or processing job.
func (s *MemoryJobStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	var unfinished []*domain.Job
	for _, job := range s.jobs {
		if job.Expired(now) {
			continue
		}
		if job.Status == domain.JobStatusPending || job.Status == domain.JobStatusProcessing {
			clone := *job
			unfinished = append(unfinished, &clone)
		}
	}
	return unfinished, nil
}

// visible returns the job if it exists and has not expired, cloning it
// so callers never share the stored record.
func (s *MemoryJobStore) visible(id uuid.UUID) (*domain.Job, error) {
	job, ok := s.jobs[id]
	if !ok || job.Expired(s.nowFn()) {
		return nil, ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}
