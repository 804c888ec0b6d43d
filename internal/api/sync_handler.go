package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/service"
)

// SyncHandler handles tag catalog sync HTTP requests.
type SyncHandler struct {
	syncService service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// SyncTags handles POST /api/admin/sync-tags requests. The sync runs
// inline; concurrent requests beyond the first are rejected.
func (h *SyncHandler) SyncTags(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncService.SyncNow(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SyncTagsResponse{
		Status:    "completed",
		TagsCount: result.TagsCount,
		Added:     result.Counts.Added,
		Updated:   result.Counts.Updated,
		Removed:   result.Counts.Removed,
		Unchanged: result.Counts.Unchanged,
		Skipped:   result.Counts.Skipped,
		Timestamp: time.Now().UTC(),
	})
}
