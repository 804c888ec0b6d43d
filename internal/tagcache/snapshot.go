// Package tagcache provides an immutable, indexed snapshot of the tag
// taxonomy and a service that publishes new snapshots to concurrent
// readers with a single atomic reference swap.
package tagcache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/classifier-api/internal/domain"
)

// DocumentVersion is the version stamp written into persisted
// snapshot documents.
const DocumentVersion = "1.0"

// Common snapshot construction errors
var (
	ErrDuplicateNameType = errors.New("duplicate (name, type) pair in snapshot")
	ErrInvalidSnapshot   = errors.New("invalid snapshot document")
)

// Snapshot is an immutable, fully-built, queryable version of the tag
// taxonomy. All lookups operate on the snapshot they were called on;
// a snapshot is never mutated after construction, so readers holding a
// reference observe a consistent view regardless of concurrent syncs.
type Snapshot struct {
	version  string
	syncedAt time.Time
	tags     []domain.Tag
	byName   map[string]int
	byAlias  map[string]int
	byType   map[domain.TagType][]int
}

// Document is the persisted wire form of a snapshot.
type Document struct {
	Version       string       `json:"version"`
	SyncTimestamp time.Time    `json:"sync_timestamp"`
	TagsCount     int          `json:"tags_count"`
	Tags          []domain.Tag `json:"tags"`
}

// BuildSnapshot validates the given tags and constructs the snapshot
// indexes. Every tag must pass domain validation; a duplicate
// (name, type) pair is a build error, never a silent merge. When two
// tags of different types share a name, or two tags share an alias,
// the earlier tag in source order wins the index entry.
func BuildSnapshot(syncedAt time.Time, tags []domain.Tag) (*Snapshot, error) {
	s := &Snapshot{
		version:  DocumentVersion,
		syncedAt: syncedAt.UTC(),
		tags:     make([]domain.Tag, len(tags)),
		byName:   make(map[string]int, len(tags)),
		byAlias:  make(map[string]int),
		byType:   make(map[domain.TagType][]int),
	}
	copy(s.tags, tags)

	nameType := make(map[string]struct{}, len(tags))

	for i, tag := range s.tags {
		if err := tag.Validate(); err != nil {
			return nil, fmt.Errorf("tag %q (id %s): %w", tag.Name, tag.ID, err)
		}

		key := strings.ToLower(tag.Name) + "\x00" + string(tag.Type)
		if _, ok := nameType[key]; ok {
			return nil, fmt.Errorf("%w: %q/%s", ErrDuplicateNameType, tag.Name, tag.Type)
		}
		nameType[key] = struct{}{}

		nameKey := strings.ToLower(tag.Name)
		if _, ok := s.byName[nameKey]; !ok {
			s.byName[nameKey] = i
		}

		for _, alias := range tag.Aliases {
			aliasKey := strings.ToLower(strings.TrimSpace(alias))
			if aliasKey == "" {
				continue
			}
			if _, ok := s.byAlias[aliasKey]; !ok {
				s.byAlias[aliasKey] = i
			}
		}

		s.byType[tag.Type] = append(s.byType[tag.Type], i)
	}

	return s, nil
}

// SnapshotFromDocument rebuilds a snapshot from its persisted form.
func SnapshotFromDocument(doc Document) (*Snapshot, error) {
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidSnapshot)
	}
	if doc.Tags == nil {
		return nil, fmt.Errorf("%w: missing tags field", ErrInvalidSnapshot)
	}
	return BuildSnapshot(doc.SyncTimestamp, doc.Tags)
}

// LookupByName returns the tag with the given name, case-insensitively.
func (s *Snapshot) LookupByName(name string) (domain.Tag, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.Tag{}, false
	}
	return s.tags[i], true
}

// LookupByAlias returns the tag carrying the given alias, case-insensitively.
func (s *Snapshot) LookupByAlias(alias string) (domain.Tag, bool) {
	i, ok := s.byAlias[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return domain.Tag{}, false
	}
	return s.tags[i], true
}

// Resolve looks a candidate string up by name first, then by alias,
// reporting which path matched.
func (s *Snapshot) Resolve(text string) (domain.Tag, domain.MatchVia, bool) {
	if tag, ok := s.LookupByName(text); ok {
		return tag, domain.MatchPrimary, true
	}
	if tag, ok := s.LookupByAlias(text); ok {
		return tag, domain.MatchAlias, true
	}
	return domain.Tag{}, "", false
}

// AllOfType returns all tags of the given type in source order.
func (s *Snapshot) AllOfType(t domain.TagType) []domain.Tag {
	indexes := s.byType[t]
	tags := make([]domain.Tag, len(indexes))
	for i, idx := range indexes {
		tags[i] = s.tags[idx]
	}
	return tags
}

// Tags returns a copy of all tags in the snapshot.
func (s *Snapshot) Tags() []domain.Tag {
	tags := make([]domain.Tag, len(s.tags))
	copy(tags, s.tags)
	return tags
}

// Count returns the number of tags in the snapshot.
func (s *Snapshot) Count() int {
	return len(s.tags)
}

// Version returns the snapshot document version.
func (s *Snapshot) Version() string {
	return s.version
}

// SyncedAt returns when this snapshot was synchronized from the source.
func (s *Snapshot) SyncedAt() time.Time {
	return s.syncedAt
}

// AgeSince returns how old the snapshot is at the given time.
func (s *Snapshot) AgeSince(now time.Time) time.Duration {
	return now.Sub(s.syncedAt)
}

// Document returns the persisted wire form of the snapshot.
func (s *Snapshot) Document() Document {
	return Document{
		Version:       s.version,
		SyncTimestamp: s.syncedAt,
		TagsCount:     len(s.tags),
		Tags:          s.Tags(),
	}
}
