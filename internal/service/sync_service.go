package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/classifier-api/internal/tagsync"
)

// ErrSyncInProgress indicates another tag sync is already running.
// Syncs are serialized because two concurrent runs would race on the
// snapshot publish.
var ErrSyncInProgress = errors.New("tag sync already in progress")

// SyncResult summarizes one completed tag sync.
type SyncResult struct {
	TagsCount int
	Counts    tagsync.Counts
}

// SyncService triggers tag catalog syncs, both scheduled and on demand.
type SyncService interface {
	// SyncNow runs one sync to completion. At most one sync runs at a
	// time; a second caller gets ErrSyncInProgress immediately.
	SyncNow(ctx context.Context) (*SyncResult, error)
}

// syncServiceImpl implements the SyncService interface.
type syncServiceImpl struct {
	engine *tagsync.Engine
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(engine *tagsync.Engine, logger *slog.Logger) (SyncService, error) {
	if engine == nil {
		return nil, errors.New("sync engine cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &syncServiceImpl{
		engine: engine,
		logger: logger.With("component", "sync_service"),
	}, nil
}

// SyncNow runs one sync to completion.
func (s *syncServiceImpl) SyncNow(ctx context.Context) (*SyncResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	snap, diff, err := s.engine.Sync(ctx)
	if err != nil {
		s.logger.Error("tag sync failed", "error", err)
		return nil, fmt.Errorf("tag sync failed: %w", err)
	}

	counts := diff.Counts()
	s.logger.Info("tag sync complete",
		"tags_count", snap.Count(),
		"added", counts.Added,
		"updated", counts.Updated,
		"removed", counts.Removed,
		"unchanged", counts.Unchanged,
		"skipped", counts.Skipped)

	return &SyncResult{
		TagsCount: snap.Count(),
		Counts:    counts,
	}, nil
}
