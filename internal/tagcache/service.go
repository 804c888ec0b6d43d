package tagcache

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGraceWindow is how long a replaced snapshot is retained for
// rollback and audit before it is discarded.
const DefaultGraceWindow = 1 * time.Hour

// Service owns the currently published snapshot reference. Publishing
// replaces the reference in one step under a short critical section;
// readers take the reference once and query that snapshot for the
// duration of their operation. The previous snapshot is retained for a
// bounded grace window after replacement.
type Service struct {
	mu         sync.RWMutex
	current    *Snapshot
	previous   *Snapshot
	replacedAt time.Time
	grace      time.Duration
	logger     *slog.Logger
}

// NewService creates a snapshot service with the given grace window
// for retained previous snapshots. A non-positive grace falls back to
// DefaultGraceWindow.
func NewService(grace time.Duration, logger *slog.Logger) *Service {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Service{
		grace:  grace,
		logger: logger,
	}
}

// Current returns the published snapshot, or nil if none has been
// published yet. Callers must hold the returned reference for the
// whole of one operation rather than re-fetching mid-operation.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish atomically replaces the published snapshot. The replaced
// snapshot is retained until the grace window passes. Returns the
// snapshot that was replaced, if any.
func (s *Service) Publish(snap *Snapshot) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.current = snap
	if prev != nil {
		s.previous = prev
		s.replacedAt = time.Now().UTC()
	}

	s.logger.Info("tag snapshot published",
		"tags_count", snap.Count(),
		"synced_at", snap.SyncedAt(),
		"replaced", prev != nil)

	return prev
}

// Previous returns the retained prior snapshot if it is still within
// the grace window at the given time, discarding it otherwise.
func (s *Service) Previous(now time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.previous == nil {
		return nil
	}
	if now.Sub(s.replacedAt) > s.grace {
		s.previous = nil
		return nil
	}
	return s.previous
}

// Ready reports whether a snapshot has been published.
func (s *Service) Ready() bool {
	return s.Current() != nil
}
