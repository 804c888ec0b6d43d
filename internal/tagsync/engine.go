// Package tagsync fetches the tag taxonomy from an external source,
// diffs it against the currently published snapshot, and atomically
// publishes a replacement. A failed sync never disturbs the snapshot
// that is already serving.
package tagsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// Common sync errors
var (
	ErrSourceUnavailable = errors.New("tag source unavailable")
	ErrTooManyInvalid    = errors.New("too many invalid tag records, refusing to publish")
	ErrNoRecords         = errors.New("tag source returned no records")
)

// SourceRecord is one raw tag record as delivered by the external
// source, before canonicalization.
type SourceRecord struct {
	ID          string
	Name        string
	Aliases     []string
	ShortForm   string
	Description string
	Type        string
}

// Source is the paginated tag-fetch capability consumed by the engine.
// FetchPage returns the records for a 1-indexed page and whether more
// pages remain.
type Source interface {
	FetchPage(ctx context.Context, page int) ([]SourceRecord, bool, error)
}

// SnapshotStore persists published snapshots for warm starts and audit.
type SnapshotStore interface {
	Save(ctx context.Context, snap *tagcache.Snapshot) error
}

// Config holds tuning parameters for the sync engine.
type Config struct {
	// MaxPages bounds the pagination loop against a source that never
	// signals completion.
	MaxPages int

	// MaxRetries is the per-page retry bound for transient source errors.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; each retry doubles it.
	RetryBaseDelay time.Duration

	// MaxSkippedFraction aborts the sync when more than this fraction
	// of fetched records fail validation, so a near-empty snapshot is
	// never published over a good one.
	MaxSkippedFraction float64
}

// DefaultConfig returns a Config with the reference limits.
func DefaultConfig() Config {
	return Config{
		MaxPages:           100,
		MaxRetries:         3,
		RetryBaseDelay:     2 * time.Second,
		MaxSkippedFraction: 0.5,
	}
}

// Engine synchronizes the tag taxonomy: fetch, canonicalize, diff,
// persist, publish.
type Engine struct {
	source Source
	cache  *tagcache.Service
	store  SnapshotStore
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a sync engine. store may be nil when persistence
// is not wired (tests, ephemeral deployments).
func NewEngine(source Source, cache *tagcache.Service, store SnapshotStore, config Config, logger *slog.Logger) *Engine {
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	if config.MaxSkippedFraction <= 0 || config.MaxSkippedFraction > 1 {
		config.MaxSkippedFraction = 0.5
	}

	return &Engine{
		source: source,
		cache:  cache,
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Sync runs one synchronization pass. On success the new snapshot is
// already published and its diff against the prior snapshot returned.
// On any failure the previously published snapshot is left serving.
func (e *Engine) Sync(ctx context.Context) (*tagcache.Snapshot, Diff, error) {
	start := e.now()

	records, err := e.fetchAll(ctx)
	if err != nil {
		return nil, Diff{}, err
	}
	if len(records) == 0 {
		return nil, Diff{}, ErrNoRecords
	}

	tags, skipped := e.canonicalize(records)

	if float64(skipped) > e.config.MaxSkippedFraction*float64(len(records)) {
		return nil, Diff{}, fmt.Errorf("%w: %d of %d records skipped",
			ErrTooManyInvalid, skipped, len(records))
	}

	snap, err := tagcache.BuildSnapshot(e.now().UTC(), tags)
	if err != nil {
		return nil, Diff{}, fmt.Errorf("failed to build snapshot: %w", err)
	}

	var prevTags []domain.Tag
	if prev := e.cache.Current(); prev != nil {
		prevTags = prev.Tags()
	}
	diff := computeDiff(prevTags, tags)
	diff.Skipped = skipped

	if e.store != nil {
		if err := e.store.Save(ctx, snap); err != nil {
			return nil, Diff{}, fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}

	e.cache.Publish(snap)

	e.logger.Info("tag sync completed",
		"tags_total", snap.Count(),
		"added", len(diff.Added),
		"updated", len(diff.Updated),
		"removed", len(diff.Removed),
		"unchanged", diff.Unchanged,
		"skipped", skipped,
		"duration_ms", e.now().Sub(start).Milliseconds())

	return snap, diff, nil
}

// fetchAll loops the paginated source until it signals no more pages,
// retrying each page with exponential backoff on transient failure.
func (e *Engine) fetchAll(ctx context.Context) ([]SourceRecord, error) {
	var all []SourceRecord

	page := 1
	for {
		records, more, err := e.fetchPageWithRetry(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrSourceUnavailable, page, err)
		}

		all = append(all, records...)
		if !more {
			break
		}

		page++
		if page > e.config.MaxPages {
			e.logger.Warn("reached maximum page limit, truncating fetch",
				"max_pages", e.config.MaxPages)
			break
		}
	}

	e.logger.Info("fetched tag records from source", "count", len(all), "pages", page)
	return all, nil
}

func (e *Engine) fetchPageWithRetry(ctx context.Context, page int) ([]SourceRecord, bool, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(e.config.RetryBaseDelay, attempt-1)
			e.logger.Warn("retrying tag source fetch",
				"page", page,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(delay):
			}
		}

		records, more, err := e.source.FetchPage(ctx, page)
		if err == nil {
			return records, more, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		lastErr = err
	}

	return nil, false, lastErr
}

// canonicalize transforms raw records into validated tags. Invalid
// records and (name, type) collisions are skipped with a diagnostic
// rather than aborting the sync.
func (e *Engine) canonicalize(records []SourceRecord) ([]domain.Tag, int) {
	tags := make([]domain.Tag, 0, len(records))
	seen := make(map[string]string, len(records))
	skipped := 0

	for _, rec := range records {
		tag := transformRecord(rec)

		if err := tag.Validate(); err != nil {
			e.logger.Warn("skipping invalid tag record",
				"tag_id", rec.ID,
				"tag_name", rec.Name,
				"error", err)
			skipped++
			continue
		}

		key := strings.ToLower(tag.Name) + "\x00" + string(tag.Type)
		if firstID, ok := seen[key]; ok {
			e.logger.Warn("skipping tag record colliding on (name, type)",
				"tag_id", tag.ID,
				"tag_name", tag.Name,
				"tag_type", tag.Type,
				"kept_tag_id", firstID)
			skipped++
			continue
		}
		seen[key] = tag.ID

		tags = append(tags, tag)
	}

	return tags, skipped
}

// transformRecord trims and normalizes one source record into
// canonical Tag form: aliases deduplicated case-insensitively and
// capped, short form upper-cased.
func transformRecord(rec SourceRecord) domain.Tag {
	aliases := make([]string, 0, len(rec.Aliases))
	seen := make(map[string]struct{}, len(rec.Aliases))
	for _, alias := range rec.Aliases {
		a := strings.TrimSpace(alias)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		aliases = append(aliases, a)
		if len(aliases) == domain.MaxTagAliases {
			break
		}
	}
	if len(aliases) == 0 {
		aliases = nil
	}

	return domain.Tag{
		ID:          strings.TrimSpace(rec.ID),
		Name:        strings.TrimSpace(rec.Name),
		Aliases:     aliases,
		ShortForm:   strings.ToUpper(strings.TrimSpace(rec.ShortForm)),
		Type:        domain.TagType(strings.TrimSpace(rec.Type)),
		Description: strings.TrimSpace(rec.Description),
	}
}

// backoffDelay returns base doubled per attempt with up to 10% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
