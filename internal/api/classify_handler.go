package api

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/classifier-api/internal/api/middleware"
	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/service"
)

// estimatedCompletionSeconds is a rough hint returned with accepted
// submissions so clients can pick a sensible first polling delay.
const estimatedCompletionSeconds = 30

// maxMultipartMemory bounds how much of a multipart upload is buffered
// in memory before spilling to disk.
const maxMultipartMemory = 10 << 20

// ClassifyHandler handles document classification HTTP requests.
type ClassifyHandler struct {
	classificationService service.ClassificationService
	validator             *validator.Validate
}

// NewClassifyHandler creates a new ClassifyHandler.
func NewClassifyHandler(classificationService service.ClassificationService) *ClassifyHandler {
	return &ClassifyHandler{
		classificationService: classificationService,
		validator:             validator.New(),
	}
}

// SubmitAsync handles POST /api/classify/async requests. The document
// arrives either as a multipart "file" field or as a JSON body with
// base64 content; either way it is stored and queued, and the response
// is a 202 with the job ID to poll.
func (h *ClassifyHandler) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	ownerHash, ok := middleware.GetOwnerHash(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing caller identity")
		return
	}

	sub, err := h.readSubmission(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	job, err := h.classificationService.SubmitAsync(r.Context(), sub, ownerHash)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := AsyncSubmitResponse{
		Status:                     "accepted",
		JobID:                      job.ID.String(),
		StatusURL:                  fmt.Sprintf("/api/classify/status/%s", job.ID),
		EstimatedCompletionSeconds: estimatedCompletionSeconds,
		CreatedAt:                  job.CreatedAt,
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, response)
}

// Status handles GET /api/classify/status/{job_id} requests. Jobs are
// only visible to the caller that submitted them.
func (h *ClassifyHandler) Status(w http.ResponseWriter, r *http.Request) {
	ownerHash, ok := middleware.GetOwnerHash(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing caller identity")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID")
		return
	}

	job, err := h.classificationService.Status(r.Context(), jobID, ownerHash)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToStatusResponse(job))
}

// ClassifySync handles POST /api/classify requests. The document is
// extracted, classified, and validated inline; only small documents are
// accepted on this path.
func (h *ClassifyHandler) ClassifySync(w http.ResponseWriter, r *http.Request) {
	sub, err := h.readSubmission(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.classificationService.ClassifySync(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SyncClassifyResponse{
		Status: "completed",
		Result: resultToResponse(result),
	})
}

// readSubmission builds a service.Submission from either a multipart
// form or a JSON body, keyed off the request Content-Type.
func (h *ClassifyHandler) readSubmission(r *http.Request) (service.Submission, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return service.Submission{}, fmt.Errorf("invalid Content-Type header")
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return h.readMultipartSubmission(r)
	}
	return h.readJSONSubmission(r)
}

func (h *ClassifyHandler) readMultipartSubmission(r *http.Request) (service.Submission, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return service.Submission{}, fmt.Errorf("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return service.Submission{}, fmt.Errorf("missing file field")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Submission{}, fmt.Errorf("failed to read uploaded file")
	}

	mimeType := header.Header.Get("Content-Type")
	// Browsers sometimes omit per-part types; fall back to a form field.
	if mimeType == "" || mimeType == "application/octet-stream" {
		if v := r.FormValue("mime_type"); v != "" {
			mimeType = v
		}
	}

	return service.Submission{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	}, nil
}

func (h *ClassifyHandler) readJSONSubmission(r *http.Request) (service.Submission, error) {
	var req SubmitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		return service.Submission{}, fmt.Errorf("invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return service.Submission{}, fmt.Errorf("filename, mime_type and content_base64 are required")
	}

	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		return service.Submission{}, fmt.Errorf("content_base64 is not valid base64")
	}

	return service.Submission{
		Filename: req.Filename,
		MimeType: req.MimeType,
		Data:     data,
	}, nil
}
