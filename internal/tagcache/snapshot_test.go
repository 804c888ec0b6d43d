package tagcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/domain"
)

func sampleTags() []domain.Tag {
	return []domain.Tag{
		{ID: "1", Name: "Solve", ShortForm: "SOL", Type: domain.TagTypeHorizon},
		{ID: "2", Name: "Plan", ShortForm: "PLN", Type: domain.TagTypeHorizon},
		{ID: "3", Name: "Cybersecurity", Aliases: []string{"InfoSec", "Security"}, ShortForm: "CYB", Type: domain.TagTypePractice},
		{ID: "4", Name: "Microsoft", ShortForm: "MSFT", Type: domain.TagTypeVendor},
	}
}

func TestBuildSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("builds indexes over valid tags", func(t *testing.T) {
		t.Parallel()

		syncedAt := time.Now().UTC()
		snap, err := BuildSnapshot(syncedAt, sampleTags())
		require.NoError(t, err)

		assert.Equal(t, 4, snap.Count())
		assert.Equal(t, DocumentVersion, snap.Version())
		assert.Equal(t, syncedAt, snap.SyncedAt())
		assert.Len(t, snap.AllOfType(domain.TagTypeHorizon), 2)
		assert.Len(t, snap.AllOfType(domain.TagTypeStream), 0)
	})

	t.Run("rejects invalid tag", func(t *testing.T) {
		t.Parallel()

		tags := sampleTags()
		tags[0].ShortForm = ""
		_, err := BuildSnapshot(time.Now(), tags)
		assert.ErrorIs(t, err, domain.ErrEmptyTagShortForm)
	})

	t.Run("rejects duplicate name and type pair", func(t *testing.T) {
		t.Parallel()

		tags := append(sampleTags(), domain.Tag{
			ID: "5", Name: "cybersecurity", ShortForm: "CYB2", Type: domain.TagTypePractice,
		})
		_, err := BuildSnapshot(time.Now(), tags)
		assert.ErrorIs(t, err, ErrDuplicateNameType)
	})
}

func TestSnapshotLookups(t *testing.T) {
	t.Parallel()

	snap, err := BuildSnapshot(time.Now(), sampleTags())
	require.NoError(t, err)

	t.Run("lookup by name is case-insensitive", func(t *testing.T) {
		t.Parallel()

		tag, ok := snap.LookupByName("cybersecurity")
		require.True(t, ok)
		assert.Equal(t, "Cybersecurity", tag.Name)

		_, ok = snap.LookupByName("Unknown")
		assert.False(t, ok)
	})

	t.Run("lookup by alias is case-insensitive", func(t *testing.T) {
		t.Parallel()

		tag, ok := snap.LookupByAlias("InfoSec")
		require.True(t, ok)
		assert.Equal(t, "Cybersecurity", tag.Name)

		tag, ok = snap.LookupByAlias("infosec")
		require.True(t, ok)
		assert.Equal(t, "Cybersecurity", tag.Name)
	})

	t.Run("resolve prefers primary name over alias", func(t *testing.T) {
		t.Parallel()

		tag, via, ok := snap.Resolve("Cybersecurity")
		require.True(t, ok)
		assert.Equal(t, domain.MatchPrimary, via)
		assert.Equal(t, "Cybersecurity", tag.Name)

		tag, via, ok = snap.Resolve("infosec")
		require.True(t, ok)
		assert.Equal(t, domain.MatchAlias, via)
		assert.Equal(t, "Cybersecurity", tag.Name)

		_, _, ok = snap.Resolve("nothing here")
		assert.False(t, ok)
	})

	t.Run("age since", func(t *testing.T) {
		t.Parallel()

		age := snap.AgeSince(snap.SyncedAt().Add(2 * time.Hour))
		assert.Equal(t, 2*time.Hour, age)
	})
}

func TestSnapshotDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	snap, err := BuildSnapshot(time.Now(), sampleTags())
	require.NoError(t, err)

	doc := snap.Document()
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, 4, doc.TagsCount)

	rebuilt, err := SnapshotFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, snap.Count(), rebuilt.Count())

	tag, ok := rebuilt.LookupByAlias("security")
	require.True(t, ok)
	assert.Equal(t, "Cybersecurity", tag.Name)

	_, err = SnapshotFromDocument(Document{Version: "1.0"})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestSnapshotImmutability(t *testing.T) {
	t.Parallel()

	tags := sampleTags()
	snap, err := BuildSnapshot(time.Now(), tags)
	require.NoError(t, err)

	// Mutating the input or returned slices must not affect the snapshot.
	tags[0].Name = "Mutated"
	got := snap.Tags()
	got[1].Name = "AlsoMutated"

	tag, ok := snap.LookupByName("Solve")
	require.True(t, ok)
	assert.Equal(t, "Solve", tag.Name)

	tag, ok = snap.LookupByName("Plan")
	require.True(t, ok)
	assert.Equal(t, "Plan", tag.Name)
}
