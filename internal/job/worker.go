package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/classifier-api/internal/blob"
	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/extract"
	"github.com/phrazzld/classifier-api/internal/store"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// Terminal failure codes recorded on the job.
const (
	CodeExtractionFailed     = "EXTRACTION_FAILED"
	CodeExtractionNoText     = "EXTRACTION_NO_TEXT"
	CodeClassificationFailed = "CLASSIFICATION_FAILED"
)

// Progress percentages per processing stage.
const (
	percentDownloading    = 10
	percentTextExtraction = 30
	percentClassification = 50
	percentValidation     = 80
)

// Worker processes one classification job end to end: acquire the job
// through a compare-and-swap, fetch the document, extract text,
// classify, validate, and record the terminal outcome. The document
// blob is removed once the job reaches a terminal status.
type Worker struct {
	store      store.JobStore
	blobs      blob.Store
	extractor  extract.Extractor
	classifier classify.Classifier
	validator  *classify.Validator
	cache      *tagcache.Service
	logger     *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	jobs store.JobStore,
	blobs blob.Store,
	extractor extract.Extractor,
	classifier classify.Classifier,
	validator *classify.Validator,
	cache *tagcache.Service,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		store:      jobs,
		blobs:      blobs,
		extractor:  extractor,
		classifier: classifier,
		validator:  validator,
		cache:      cache,
		logger:     logger,
	}
}

var _ Processor = (*Worker)(nil)

// Process runs the pipeline for one message. A RetryableError return
// asks the dispatcher for another attempt; a nil return means the job
// reached a terminal status or is no longer this worker's to process.
func (w *Worker) Process(ctx context.Context, msg Message) error {
	logger := w.logger.With("job_id", msg.JobID, "attempt", msg.Attempt+1)

	// Acquire the job. Losing the compare-and-swap means another worker
	// already holds it; an expired or missing job needs nothing from us.
	job, err := w.store.Transition(ctx, msg.JobID, domain.JobStatusPending, domain.JobStatusProcessing, store.TransitionPatch{
		Progress: &domain.Progress{Stage: domain.StageDownloading, PercentComplete: percentDownloading},
	})
	if err != nil {
		if store.IsConflict(err) || store.IsNotFound(err) {
			logger.Debug("skipping job", "reason", err)
			return nil
		}
		return Retryable(fmt.Errorf("failed to acquire job: %w", err))
	}

	logger.Info("processing job", "filename", job.Document.Filename)

	data, err := w.blobs.Get(ctx, job.Document.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			// The document is gone; no retry can bring it back.
			return w.fail(ctx, job, CodeExtractionFailed, "submitted document is no longer available", logger)
		}
		return Retryable(fmt.Errorf("failed to fetch document: %w", err))
	}

	w.progress(ctx, job, domain.StageTextExtraction, percentTextExtraction, logger)

	text, err := w.extractor.Extract(ctx, data, job.Document.MimeType)
	if err != nil {
		if errors.Is(err, extract.ErrNoText) {
			return w.fail(ctx, job, CodeExtractionNoText, "document contains no extractable text", logger)
		}
		return w.fail(ctx, job, CodeExtractionFailed, fmt.Sprintf("text extraction failed: %v", err), logger)
	}

	w.progress(ctx, job, domain.StageClassification, percentClassification, logger)

	snap := w.cache.Current()
	if snap == nil {
		// No tag snapshot yet; retry once the first sync lands.
		return Retryable(errors.New("tag snapshot not available"))
	}

	candidates, err := w.classifier.Classify(ctx, text, snap)
	if err != nil {
		if errors.Is(err, classify.ErrTransient) {
			return Retryable(fmt.Errorf("classification failed transiently: %w", err))
		}
		return w.fail(ctx, job, CodeClassificationFailed, fmt.Sprintf("classification failed: %v", err), logger)
	}

	w.progress(ctx, job, domain.StageValidation, percentValidation, logger)

	result, err := w.validator.Validate(candidates, snap)
	if err != nil {
		if ve, ok := classify.AsValidationError(err); ok {
			// Validation failures are final for this document; a retry
			// would replay the same under-delivery.
			return w.fail(ctx, job, ve.Code, ve.Message, logger)
		}
		return w.fail(ctx, job, CodeClassificationFailed, fmt.Sprintf("validation failed: %v", err), logger)
	}

	if _, err := w.store.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, store.TransitionPatch{
		Result: result,
	}); err != nil {
		if store.IsConflict(err) || store.IsNotFound(err) {
			logger.Warn("lost job before recording completion", "error", err)
			return nil
		}
		return Retryable(fmt.Errorf("failed to record completion: %w", err))
	}

	logger.Info("job completed")
	w.cleanup(ctx, job, logger)
	return nil
}

// fail records a terminal failure and removes the document blob.
func (w *Worker) fail(ctx context.Context, job *domain.Job, code, message string, logger *slog.Logger) error {
	logger.Warn("failing job", "error_code", code, "message", message)

	_, err := w.store.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed, store.TransitionPatch{
		Error: &domain.JobError{Code: code, Message: message},
	})
	if err != nil {
		if store.IsConflict(err) || store.IsNotFound(err) {
			logger.Warn("lost job before recording failure", "error", err)
			return nil
		}
		return Retryable(fmt.Errorf("failed to record failure: %w", err))
	}

	w.cleanup(ctx, job, logger)
	return nil
}

// progress reports stage advancement. Losing the job mid-flight is
// caught at the next transition, so progress errors only log.
func (w *Worker) progress(ctx context.Context, job *domain.Job, stage string, percent int, logger *slog.Logger) {
	err := w.store.UpdateProgress(ctx, job.ID, domain.Progress{Stage: stage, PercentComplete: percent})
	if err != nil {
		logger.Debug("failed to update progress", "stage", stage, "error", err)
	}
}

// cleanup removes the document blob after a terminal transition.
func (w *Worker) cleanup(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	if err := w.blobs.Delete(ctx, job.Document.StorageKey); err != nil {
		logger.Warn("failed to delete document blob",
			"storage_key", job.Document.StorageKey,
			"error", err)
	}
}
