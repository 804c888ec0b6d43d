package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// HealthHandler reports service readiness. The service is degraded,
// not down, while the tag catalog has never been synced.
type HealthHandler struct {
	cache *tagcache.Service
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cache *tagcache.Service) *HealthHandler {
	return &HealthHandler{cache: cache}
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	snap := h.cache.Current()
	if snap == nil {
		resp.Status = "degraded"
		shared.RespondWithJSON(w, r, http.StatusOK, resp)
		return
	}

	syncedAt := snap.SyncedAt()
	age := int64(snap.AgeSince(time.Now().UTC()).Seconds())
	resp.TagsCount = snap.Count()
	resp.TagsSyncedAt = &syncedAt
	resp.TagsAgeSeconds = &age
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
