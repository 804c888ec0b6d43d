package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/classifier-api/internal/blob"
	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/extract"
	"github.com/phrazzld/classifier-api/internal/job"
	"github.com/phrazzld/classifier-api/internal/store"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// Submission limit defaults, overridable through configuration.
const (
	DefaultMaxSyncBytes  = 5 * 1024 * 1024
	DefaultMaxAsyncBytes = 50 * 1024 * 1024
)

// Common sentinel errors for the classification service.
var (
	// ErrEmptyDocument indicates a submission with no content.
	ErrEmptyDocument = errors.New("submitted document is empty")

	// ErrDocumentTooLarge indicates the submission exceeds the size
	// limit for the chosen path.
	ErrDocumentTooLarge = errors.New("submitted document exceeds size limit")

	// ErrUnsupportedDocument indicates a MIME type outside the accepted set.
	ErrUnsupportedDocument = errors.New("unsupported document type")

	// ErrQueueBusy indicates the async pipeline cannot accept more work
	// right now.
	ErrQueueBusy = errors.New("classification queue is at capacity")

	// ErrJobNotFound indicates the job does not exist, has expired, or
	// belongs to a different API key.
	ErrJobNotFound = errors.New("job not found")

	// ErrTagsNotReady indicates no tag snapshot has been synced yet, so
	// classification cannot run.
	ErrTagsNotReady = errors.New("tag catalog has not been synced yet")
)

// Submission is one document handed to the service for classification.
type Submission struct {
	Filename string
	MimeType string
	Data     []byte
}

// ClassificationService is the application surface for document
// classification: asynchronous submission with status polling, plus a
// bounded synchronous path for small documents.
type ClassificationService interface {
	// SubmitAsync validates the submission, stores the document, creates
	// a pending job, and enqueues it for processing.
	SubmitAsync(ctx context.Context, sub Submission, ownerKeyHash string) (*domain.Job, error)

	// Status returns the job as visible to the given owner.
	Status(ctx context.Context, jobID uuid.UUID, ownerKeyHash string) (*domain.Job, error)

	// ClassifySync runs the full pipeline inline for a small document.
	ClassifySync(ctx context.Context, sub Submission) (*domain.ClassificationResult, error)
}

// ClassificationConfig holds the service's submission limits and job lifetime.
type ClassificationConfig struct {
	MaxSyncBytes  int64
	MaxAsyncBytes int64
	JobTTL        time.Duration
}

// classificationServiceImpl implements the ClassificationService interface.
type classificationServiceImpl struct {
	jobs       store.JobStore
	blobs      blob.Store
	queue      *job.Queue
	extractor  extract.Extractor
	classifier classify.Classifier
	validator  *classify.Validator
	cache      *tagcache.Service
	config     ClassificationConfig
	logger     *slog.Logger
}

// NewClassificationService creates a new ClassificationService.
// It returns an error if any of the required dependencies are nil.
func NewClassificationService(
	jobs store.JobStore,
	blobs blob.Store,
	queue *job.Queue,
	extractor extract.Extractor,
	classifier classify.Classifier,
	validator *classify.Validator,
	cache *tagcache.Service,
	config ClassificationConfig,
	logger *slog.Logger,
) (ClassificationService, error) {
	if jobs == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if blobs == nil {
		return nil, errors.New("blob store cannot be nil")
	}
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if classifier == nil {
		return nil, errors.New("classifier cannot be nil")
	}
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if cache == nil {
		return nil, errors.New("tag cache cannot be nil")
	}
	if config.MaxSyncBytes <= 0 {
		config.MaxSyncBytes = DefaultMaxSyncBytes
	}
	if config.MaxAsyncBytes <= 0 {
		config.MaxAsyncBytes = DefaultMaxAsyncBytes
	}
	if config.JobTTL <= 0 {
		config.JobTTL = domain.DefaultJobTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &classificationServiceImpl{
		jobs:       jobs,
		blobs:      blobs,
		queue:      queue,
		extractor:  extractor,
		classifier: classifier,
		validator:  validator,
		cache:      cache,
		config:     config,
		logger:     logger.With("component", "classification_service"),
	}, nil
}

// SubmitAsync validates the submission, stores the document, creates a
// pending job, and enqueues it for processing.
func (s *classificationServiceImpl) SubmitAsync(
	ctx context.Context,
	sub Submission,
	ownerKeyHash string,
) (*domain.Job, error) {
	if err := validateSubmission(sub, s.config.MaxAsyncBytes); err != nil {
		return nil, err
	}

	storageKey := fmt.Sprintf("jobs/%s/%s", uuid.New(), sub.Filename)
	if err := s.blobs.Put(ctx, storageKey, sub.Data, sub.MimeType); err != nil {
		s.logger.Error("failed to store submitted document",
			"storage_key", storageKey,
			"error", err)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	j, err := domain.NewJob(domain.DocumentRef{
		Filename:   sub.Filename,
		SizeBytes:  int64(len(sub.Data)),
		MimeType:   sub.MimeType,
		StorageKey: storageKey,
	}, ownerKeyHash, s.config.JobTTL)
	if err != nil {
		s.cleanupBlob(ctx, storageKey)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.jobs.Create(ctx, j); err != nil {
		s.cleanupBlob(ctx, storageKey)
		s.logger.Error("failed to persist job", "job_id", j.ID, "error", err)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := s.queue.Enqueue(job.Message{JobID: j.ID}); err != nil {
		// The pending record stays behind and is swept by TTL expiry;
		// without its blob it can never produce a stale result.
		s.cleanupBlob(ctx, storageKey)
		s.logger.Warn("failed to enqueue job", "job_id", j.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrQueueBusy, err)
	}

	s.logger.Info("job submitted",
		"job_id", j.ID,
		"filename", sub.Filename,
		"size_bytes", len(sub.Data))
	return j, nil
}

// Status returns the job as visible to the given owner. Jobs owned by
// other keys, expired jobs, and unknown IDs all report ErrJobNotFound.
func (s *classificationServiceImpl) Status(ctx context.Context, jobID uuid.UUID, ownerKeyHash string) (*domain.Job, error) {
	j, err := s.jobs.GetForOwner(ctx, jobID, ownerKeyHash)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}
	return j, nil
}

// ClassifySync runs the full pipeline inline for a small document.
func (s *classificationServiceImpl) ClassifySync(ctx context.Context, sub Submission) (*domain.ClassificationResult, error) {
	if err := validateSubmission(sub, s.config.MaxSyncBytes); err != nil {
		return nil, err
	}

	snap := s.cache.Current()
	if snap == nil {
		return nil, ErrTagsNotReady
	}

	text, err := s.extractor.Extract(ctx, sub.Data, sub.MimeType)
	if err != nil {
		return nil, err
	}

	candidates, err := s.classifier.Classify(ctx, text, snap)
	if err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(candidates, snap)
	if err != nil {
		return nil, err
	}

	s.logger.Info("synchronous classification complete",
		"filename", sub.Filename,
		"horizon", result.Horizon.Name,
		"practice", result.Practice.Name)
	return result, nil
}

// cleanupBlob removes a document written before a later submission step
// failed.
func (s *classificationServiceImpl) cleanupBlob(ctx context.Context, storageKey string) {
	if err := s.blobs.Delete(ctx, storageKey); err != nil {
		s.logger.Warn("failed to clean up document blob",
			"storage_key", storageKey,
			"error", err)
	}
}

// validateSubmission applies the shared submission rules with the
// path-specific size limit.
func validateSubmission(sub Submission, maxBytes int64) error {
	if len(sub.Data) == 0 {
		return ErrEmptyDocument
	}
	if int64(len(sub.Data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrDocumentTooLarge, len(sub.Data), maxBytes)
	}
	if !extract.SupportedMIMETypes[sub.MimeType] {
		return fmt.Errorf("%w: %s", ErrUnsupportedDocument, sub.MimeType)
	}
	return nil
}
