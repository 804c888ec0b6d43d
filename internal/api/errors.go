package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/extract"
	"github.com/phrazzld/classifier-api/internal/service"
)

// writeServiceError maps errors surfaced by the service layer to the
// standard error envelope. Handlers call this instead of mapping status
// codes inline so every endpoint reports the same codes for the same
// failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := classify.AsValidationError(err); ok {
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity, ve.Code, ve.Message)
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyDocument):
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"EMPTY_DOCUMENT", "Submitted document is empty")
	case errors.Is(err, service.ErrDocumentTooLarge):
		shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge,
			"DOCUMENT_TOO_LARGE", "Document exceeds the size limit for this endpoint")
	case errors.Is(err, service.ErrUnsupportedDocument),
		errors.Is(err, extract.ErrUnsupportedFormat):
		shared.RespondWithError(w, r, http.StatusUnsupportedMediaType,
			"UNSUPPORTED_MEDIA_TYPE", "Document format is not supported")
	case errors.Is(err, service.ErrQueueBusy):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable,
			"QUEUE_BUSY", "Classification queue is at capacity, retry later")
	case errors.Is(err, service.ErrJobNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound,
			"JOB_NOT_FOUND", "Job not found")
	case errors.Is(err, service.ErrTagsNotReady):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable,
			"TAGS_NOT_READY", "Tag catalog has not been synced yet")
	case errors.Is(err, service.ErrSyncInProgress):
		shared.RespondWithError(w, r, http.StatusConflict,
			"SYNC_IN_PROGRESS", "A tag sync is already running")
	case errors.Is(err, extract.ErrNoText):
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity,
			"EXTRACTION_NO_TEXT", "No usable text could be extracted from the document")
	case errors.Is(err, classify.ErrContentBlocked):
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity,
			"CONTENT_BLOCKED", "Document was blocked by content safety filters")
	case errors.Is(err, classify.ErrTransient),
		errors.Is(err, classify.ErrInvalidResponse):
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway,
			"CLASSIFICATION_FAILED", "Classification backend failed, retry later", err)
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}
