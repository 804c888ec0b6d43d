package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/domain"
)

func newTestJob(t *testing.T, ttl time.Duration) *domain.Job {
	t.Helper()

	job, err := domain.NewJob(domain.DocumentRef{
		Filename:   "report.pdf",
		SizeBytes:  1024,
		MimeType:   "application/pdf",
		StorageKey: "jobs/x/report.pdf",
	}, "owner-a", ttl)
	require.NoError(t, err)
	return job
}

func TestMemoryJobStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryJobStore()
	ctx := context.Background()
	job := newTestJob(t, time.Hour)

	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	_, err = s.Get(ctx, newTestJob(t, time.Hour).ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStoreOwnership(t *testing.T) {
	t.Parallel()

	s := NewMemoryJobStore()
	ctx := context.Background()
	job := newTestJob(t, time.Hour)
	require.NoError(t, s.Create(ctx, job))

	got, err := s.GetForOwner(ctx, job.ID, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	// A different owner sees not-found, never a distinct error.
	_, err = s.GetForOwner(ctx, job.ID, "owner-b")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStoreTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("pending to processing", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		got, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{
			Progress: &domain.Progress{Stage: domain.StageDownloading, PercentComplete: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, got.Status)
		require.NotNil(t, got.Progress)
		assert.Equal(t, domain.StageDownloading, got.Progress.Stage)
		assert.Nil(t, got.TerminalAt)
	})

	t.Run("CAS failure on mismatched from-status", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, TransitionPatch{})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("concurrent acquire yields one winner", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		const racers = 8
		var wg sync.WaitGroup
		results := make(chan error, racers)

		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins, conflicts := 0, 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case IsConflict(err):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, racers-1, conflicts)
	})

	t.Run("terminal transitions attach result or error", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
		require.NoError(t, err)

		result := &domain.ClassificationResult{
			Horizon:  domain.TagRef{Name: "Solve", ShortForm: "SOL", Confidence: 0.9, MatchedVia: domain.MatchPrimary},
			Practice: domain.TagRef{Name: "Cybersecurity", ShortForm: "CYB", Confidence: 0.8, MatchedVia: domain.MatchPrimary},
		}
		got, err := s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, TransitionPatch{Result: result})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		require.NotNil(t, got.TerminalAt)
		require.NotNil(t, got.Result)
		assert.Equal(t, "Solve", got.Result.Horizon.Name)
	})

	t.Run("no transition out of terminal status", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
		require.NoError(t, err)
		_, err = s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed, TransitionPatch{
			Error: &domain.JobError{Code: "CLASSIFICATION_FAILED", Message: "boom"},
		})
		require.NoError(t, err)

		_, err = s.Transition(ctx, job.ID, domain.JobStatusFailed, domain.JobStatusProcessing, TransitionPatch{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestMemoryJobStoreTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("expired job is invisible to get", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		now := time.Now()
		s.SetNowFunc(func() time.Time { return now.Add(25 * time.Hour) })

		_, err := s.Get(ctx, job.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
		_, err = s.GetForOwner(ctx, job.ID, "owner-a")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("late terminal write to expired job is rejected", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		job := newTestJob(t, time.Hour)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
		require.NoError(t, err)

		now := time.Now()
		s.SetNowFunc(func() time.Time { return now.Add(25 * time.Hour) })

		_, err = s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, TransitionPatch{})
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("expire removes and returns past-TTL jobs", func(t *testing.T) {
		t.Parallel()

		s := NewMemoryJobStore()
		shortJob := newTestJob(t, time.Minute)
		longJob := newTestJob(t, 48*time.Hour)
		require.NoError(t, s.Create(ctx, shortJob))
		require.NoError(t, s.Create(ctx, longJob))

		expired, err := s.Expire(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, shortJob.ID, expired[0].ID)

		_, err = s.Get(ctx, shortJob.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
		_, err = s.Get(ctx, longJob.ID)
		assert.NoError(t, err)
	})
}

func TestMemoryJobStoreUpdateProgress(t *testing.T) {
	t.Parallel()

	s := NewMemoryJobStore()
	ctx := context.Background()
	job := newTestJob(t, time.Hour)
	require.NoError(t, s.Create(ctx, job))

	// Progress on a pending job conflicts.
	err := s.UpdateProgress(ctx, job.ID, domain.Progress{Stage: domain.StageTextExtraction, PercentComplete: 30})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(ctx, job.ID, domain.Progress{Stage: domain.StageClassification, PercentComplete: 50}))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.Equal(t, domain.StageClassification, got.Progress.Stage)
	assert.Equal(t, 50, got.Progress.PercentComplete)
}

func TestMemoryJobStoreListUnfinished(t *testing.T) {
	t.Parallel()

	s := NewMemoryJobStore()
	ctx := context.Background()

	pending := newTestJob(t, time.Hour)
	require.NoError(t, s.Create(ctx, pending))

	processing := newTestJob(t, time.Hour)
	require.NoError(t, s.Create(ctx, processing))
	_, err := s.Transition(ctx, processing.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
	require.NoError(t, err)

	completed := newTestJob(t, time.Hour)
	require.NoError(t, s.Create(ctx, completed))
	_, err = s.Transition(ctx, completed.ID, domain.JobStatusPending, domain.JobStatusProcessing, TransitionPatch{})
	require.NoError(t, err)
	_, err = s.Transition(ctx, completed.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, TransitionPatch{})
	require.NoError(t, err)

	unfinished, err := s.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)

	ids := map[string]bool{}
	for _, j := range unfinished {
		ids[j.ID.String()] = true
	}
	assert.True(t, ids[pending.ID.String()])
	assert.True(t, ids[processing.ID.String()])
}
