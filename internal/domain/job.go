package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a classification job
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Processing stage names reported through job progress
const (
	StageDownloading    = "downloading"
	StageTextExtraction = "text_extraction"
	StageClassification = "classification"
	StageValidation     = "validation"
)

// DefaultJobTTL is the fixed lifetime of a job record from creation.
const DefaultJobTTL = 24 * time.Hour

// Common validation errors for Job
var (
	ErrEmptyOwnerKeyHash = errors.New("job owner key hash cannot be empty")
	ErrEmptyStorageKey   = errors.New("job document storage key cannot be empty")
	ErrEmptyFilename     = errors.New("job document filename cannot be empty")
	ErrInvalidJobTTL     = errors.New("job TTL must be positive")
	ErrInvalidJobStatus  = errors.New("invalid job status")
)

// Progress reports how far a processing job has advanced.
type Progress struct {
	Stage           string `json:"stage"`
	PercentComplete int    `json:"percent_complete"`
}

// JobError is the stable (code, message) pair attached to a failed job.
type JobError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// DocumentRef points at the temporary blob holding the submitted
// document, along with the metadata needed to process it.
type DocumentRef struct {
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	MimeType   string `json:"mime_type"`
	StorageKey string `json:"storage_key"`
}

// Job is a trackable unit of asynchronous classification work with a
// bounded lifetime. Records are owned by the job store; workers hold a
// lease acquired through a compare-and-swap status transition.
type Job struct {
	ID           uuid.UUID             `json:"job_id"`
	Status       JobStatus             `json:"status"`
	OwnerKeyHash string                `json:"owner_key_hash"`
	Document     DocumentRef           `json:"document"`
	Progress     *Progress             `json:"progress,omitempty"`
	Result       *ClassificationResult `json:"result,omitempty"`
	Error        *JobError             `json:"error,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	TerminalAt   *time.Time            `json:"terminal_at,omitempty"`
	TTLExpiresAt time.Time             `json:"ttl_expires_at"`
}

// NewJob creates a new pending Job for the given document and owner.
// It generates a new UUID for the job ID and stamps creation time and
// TTL expiry. Returns an error if validation fails.
func NewJob(doc DocumentRef, ownerKeyHash string, ttl time.Duration) (*Job, error) {
	if ownerKeyHash == "" {
		return nil, ErrEmptyOwnerKeyHash
	}
	if doc.StorageKey == "" {
		return nil, ErrEmptyStorageKey
	}
	if doc.Filename == "" {
		return nil, ErrEmptyFilename
	}
	if ttl <= 0 {
		return nil, ErrInvalidJobTTL
	}

	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		Status:       JobStatusPending,
		OwnerKeyHash: ownerKeyHash,
		Document:     doc,
		CreatedAt:    now,
		UpdatedAt:    now,
		TTLExpiresAt: now.Add(ttl),
	}, nil
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValidJobStatus checks if the given status is a known JobStatus.
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether the state machine permits moving
// from one status to another. Processing may return to pending for a
// bounded retry. Pending may fail directly: an attempt can exhaust the
// retry budget before the worker ever wins the acquire lease. Terminal
// states admit nothing.
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusPending
	default:
		return false
	}
}

// Expired reports whether the job's TTL has passed at the given time.
func (j *Job) Expired(now time.Time) bool {
	return !now.Before(j.TTLExpiresAt)
}
