package api

import (
	"time"

	"github.com/phrazzld/classifier-api/internal/domain"
)

// Common request/response structures

// SubmitRequest is the JSON body for base64 document submission. The
// multipart form path fills the same fields from the uploaded file.
type SubmitRequest struct {
	Filename      string `json:"filename"       validate:"required"`
	MimeType      string `json:"mime_type"      validate:"required"`
	ContentBase64 string `json:"content_base64" validate:"required"`
}

// AsyncSubmitResponse acknowledges an accepted async submission.
type AsyncSubmitResponse struct {
	Status                     string    `json:"status"`
	JobID                      string    `json:"job_id"`
	StatusURL                  string    `json:"status_url"`
	EstimatedCompletionSeconds int       `json:"estimated_completion_seconds"`
	CreatedAt                  time.Time `json:"created_at"`
}

// ProgressResponse reports how far a processing job has advanced.
type ProgressResponse struct {
	Stage           string `json:"stage"`
	PercentComplete int    `json:"percent_complete"`
}

// JobErrorResponse is the stable failure detail attached to failed jobs.
type JobErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// TagRefResponse is one validated tag in a classification result.
type TagRefResponse struct {
	Name       string  `json:"name"`
	ShortForm  string  `json:"short_form"`
	Confidence float64 `json:"confidence"`
	MatchedVia string  `json:"matched_via"`
}

// ClassificationResultResponse is the validated classification payload.
type ClassificationResultResponse struct {
	Horizon  TagRefResponse   `json:"horizon"`
	Practice TagRefResponse   `json:"practice"`
	Streams  []TagRefResponse `json:"streams"`
	Roles    []TagRefResponse `json:"roles"`
	Vendors  []TagRefResponse `json:"vendors"`
	Products []TagRefResponse `json:"products"`
	Topics   []TagRefResponse `json:"topics"`
}

// JobStatusResponse is the polling payload for one job.
type JobStatusResponse struct {
	JobID     string                        `json:"job_id"`
	Status    string                        `json:"status"`
	Progress  *ProgressResponse             `json:"progress,omitempty"`
	Result    *ClassificationResultResponse `json:"result,omitempty"`
	Error     *JobErrorResponse             `json:"error,omitempty"`
	CreatedAt time.Time                     `json:"created_at"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// SyncClassifyResponse wraps a synchronous classification result.
type SyncClassifyResponse struct {
	Status string                        `json:"status"`
	Result *ClassificationResultResponse `json:"result"`
}

// SyncTagsResponse summarizes a completed tag sync.
type SyncTagsResponse struct {
	Status    string    `json:"status"`
	TagsCount int       `json:"tags_count"`
	Added     int       `json:"added"`
	Updated   int       `json:"updated"`
	Removed   int       `json:"removed"`
	Unchanged int       `json:"unchanged"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports service readiness and tag cache freshness.
type HealthResponse struct {
	Status         string     `json:"status"`
	TagsCount      int        `json:"tags_count"`
	TagsSyncedAt   *time.Time `json:"tags_synced_at,omitempty"`
	TagsAgeSeconds *int64     `json:"tags_age_seconds,omitempty"`
}

// jobToStatusResponse converts a domain.Job to a JobStatusResponse.
func jobToStatusResponse(job *domain.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Progress != nil {
		resp.Progress = &ProgressResponse{
			Stage:           job.Progress.Stage,
			PercentComplete: job.Progress.PercentComplete,
		}
	}
	if job.Result != nil {
		resp.Result = resultToResponse(job.Result)
	}
	if job.Error != nil {
		resp.Error = &JobErrorResponse{
			ErrorCode: job.Error.Code,
			Message:   job.Error.Message,
		}
	}
	return resp
}

// resultToResponse converts a domain.ClassificationResult.
func resultToResponse(result *domain.ClassificationResult) *ClassificationResultResponse {
	return &ClassificationResultResponse{
		Horizon:  tagRefToResponse(result.Horizon),
		Practice: tagRefToResponse(result.Practice),
		Streams:  tagRefsToResponse(result.Streams),
		Roles:    tagRefsToResponse(result.Roles),
		Vendors:  tagRefsToResponse(result.Vendors),
		Products: tagRefsToResponse(result.Products),
		Topics:   tagRefsToResponse(result.Topics),
	}
}

func tagRefToResponse(ref domain.TagRef) TagRefResponse {
	return TagRefResponse{
		Name:       ref.Name,
		ShortForm:  ref.ShortForm,
		Confidence: ref.Confidence,
		MatchedVia: string(ref.MatchedVia),
	}
}

func tagRefsToResponse(refs []domain.TagRef) []TagRefResponse {
	if len(refs) == 0 {
		return nil
	}
	out := make([]TagRefResponse, 0, len(refs))
	for _, ref := range refs {
		out = append(out, tagRefToResponse(ref))
	}
	return out
}
