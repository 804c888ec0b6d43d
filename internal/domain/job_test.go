package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocRef() DocumentRef {
	return DocumentRef{
		Filename:   "report.pdf",
		SizeBytes:  6 * 1024 * 1024,
		MimeType:   "application/pdf",
		StorageKey: "jobs/abc/report.pdf",
	}
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	t.Run("creates pending job with TTL", func(t *testing.T) {
		t.Parallel()

		before := time.Now().UTC()
		job, err := NewJob(validDocRef(), "ownerhash", DefaultJobTTL)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, "ownerhash", job.OwnerKeyHash)
		assert.Nil(t, job.Result)
		assert.Nil(t, job.Error)
		assert.Nil(t, job.TerminalAt)
		assert.WithinDuration(t, before.Add(DefaultJobTTL), job.TTLExpiresAt, time.Minute)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		t.Parallel()

		_, err := NewJob(validDocRef(), "", DefaultJobTTL)
		assert.ErrorIs(t, err, ErrEmptyOwnerKeyHash)

		doc := validDocRef()
		doc.StorageKey = ""
		_, err = NewJob(doc, "ownerhash", DefaultJobTTL)
		assert.ErrorIs(t, err, ErrEmptyStorageKey)

		doc = validDocRef()
		doc.Filename = ""
		_, err = NewJob(doc, "ownerhash", DefaultJobTTL)
		assert.ErrorIs(t, err, ErrEmptyFilename)

		_, err = NewJob(validDocRef(), "ownerhash", 0)
		assert.ErrorIs(t, err, ErrInvalidJobTTL)
	})
}

func TestValidTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to JobStatus }{
		{JobStatusPending, JobStatusProcessing},
		{JobStatusPending, JobStatusFailed},
		{JobStatusProcessing, JobStatusCompleted},
		{JobStatusProcessing, JobStatusFailed},
		{JobStatusProcessing, JobStatusPending},
	}
	for _, tr := range allowed {
		assert.True(t, ValidTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to JobStatus }{
		{JobStatusPending, JobStatusCompleted},
		{JobStatusCompleted, JobStatusProcessing},
		{JobStatusCompleted, JobStatusFailed},
		{JobStatusFailed, JobStatusPending},
		{JobStatusFailed, JobStatusCompleted},
	}
	for _, tr := range denied {
		assert.False(t, ValidTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestJobExpired(t *testing.T) {
	t.Parallel()

	job, err := NewJob(validDocRef(), "ownerhash", time.Hour)
	require.NoError(t, err)

	assert.False(t, job.Expired(job.CreatedAt))
	assert.False(t, job.Expired(job.TTLExpiresAt.Add(-time.Second)))
	assert.True(t, job.Expired(job.TTLExpiresAt))
	assert.True(t, job.Expired(job.TTLExpiresAt.Add(time.Hour)))
}
