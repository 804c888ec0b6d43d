package tagsync

import (
	"github.com/phrazzld/classifier-api/internal/domain"
)

// TagUpdate records one tag that changed between two snapshots.
type TagUpdate struct {
	Old           domain.Tag `json:"old"`
	New           domain.Tag `json:"new"`
	ChangedFields []string   `json:"changed_fields"`
}

// Diff is the report of one synchronization run: what was added,
// updated, or removed relative to the previous snapshot, by tag ID.
// The snapshot is authoritative; the diff is only a report.
type Diff struct {
	Added     []domain.Tag `json:"added"`
	Updated   []TagUpdate  `json:"updated"`
	Removed   []domain.Tag `json:"removed"`
	Unchanged int          `json:"unchanged"`
	Skipped   int          `json:"skipped"`
}

// Counts summarizes a diff for boundary responses.
type Counts struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Counts returns the per-category totals of the diff.
func (d Diff) Counts() Counts {
	return Counts{
		Added:     len(d.Added),
		Updated:   len(d.Updated),
		Removed:   len(d.Removed),
		Unchanged: d.Unchanged,
		Skipped:   d.Skipped,
	}
}

// computeDiff compares two tag sets by ID. Tags present only in next
// are added; present only in prev are removed; present in both with
// any differing field are updated, with the changed fields recorded.
// Iteration follows next's order for added/updated and prev's order
// for removed, so the report is deterministic.
func computeDiff(prev, next []domain.Tag) Diff {
	var diff Diff

	prevByID := make(map[string]domain.Tag, len(prev))
	for _, tag := range prev {
		prevByID[tag.ID] = tag
	}

	nextIDs := make(map[string]struct{}, len(next))
	for _, tag := range next {
		nextIDs[tag.ID] = struct{}{}

		old, ok := prevByID[tag.ID]
		if !ok {
			diff.Added = append(diff.Added, tag)
			continue
		}

		changed := old.ChangedFields(tag)
		if len(changed) == 0 {
			diff.Unchanged++
			continue
		}

		diff.Updated = append(diff.Updated, TagUpdate{
			Old:           old,
			New:           tag,
			ChangedFields: changed,
		})
	}

	for _, tag := range prev {
		if _, ok := nextIDs[tag.ID]; !ok {
			diff.Removed = append(diff.Removed, tag)
		}
	}

	return diff
}
