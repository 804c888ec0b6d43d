package job

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/blob"
	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/extract"
	"github.com/phrazzld/classifier-api/internal/store"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// stubClassifier returns a scripted candidate set or error.
type stubClassifier struct {
	candidates domain.RawCandidates
	err        error
}

func (c *stubClassifier) Classify(ctx context.Context, text string, snap *tagcache.Snapshot) (domain.RawCandidates, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.candidates, nil
}

func testSnapshot(t *testing.T) *tagcache.Snapshot {
	t.Helper()

	snap, err := tagcache.BuildSnapshot(time.Now().UTC(), []domain.Tag{
		{ID: "h1", Name: "Solve", ShortForm: "SOL", Type: domain.TagTypeHorizon},
		{ID: "h2", Name: "Plan", ShortForm: "PLN", Type: domain.TagTypeHorizon},
		{ID: "p1", Name: "Cybersecurity", ShortForm: "CYB", Type: domain.TagTypePractice},
		{ID: "t1", Name: "Zero Trust", ShortForm: "ZT", Type: domain.TagTypeTopic},
	})
	require.NoError(t, err)
	return snap
}

// workerHarness wires a Worker to in-memory backends.
type workerHarness struct {
	worker *Worker
	store  *store.MemoryJobStore
	blobs  *blob.MemoryStore
	cache  *tagcache.Service
}

func newWorkerHarness(t *testing.T, classifier classify.Classifier, withSnapshot bool) *workerHarness {
	t.Helper()

	jobs := store.NewMemoryJobStore()
	blobs := blob.NewMemoryStore()
	cache := tagcache.NewService(tagcache.DefaultGraceWindow, slog.Default())
	if withSnapshot {
		cache.Publish(testSnapshot(t))
	}

	w := NewWorker(
		jobs,
		blobs,
		extract.NewTextExtractor(),
		classifier,
		classify.NewValidator(slog.Default()),
		cache,
		slog.Default(),
	)

	return &workerHarness{worker: w, store: jobs, blobs: blobs, cache: cache}
}

func (h *workerHarness) submit(t *testing.T, content string) *domain.Job {
	t.Helper()

	j, err := domain.NewJob(domain.DocumentRef{
		Filename:   "doc.txt",
		SizeBytes:  int64(len(content)),
		MimeType:   "text/plain",
		StorageKey: "jobs/test/doc.txt",
	}, "owner", time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.blobs.Put(ctx, j.Document.StorageKey, []byte(content), "text/plain"))
	require.NoError(t, h.store.Create(ctx, j))
	return j
}

var classifiableText = strings.Repeat("quarterly security posture assessment for the client environment ", 3)

func TestWorkerProcessCompletes(t *testing.T) {
	t.Parallel()

	classifier := &stubClassifier{candidates: domain.RawCandidates{
		{Text: "Solve", Confidence: 0.9},
		{Text: "Cybersecurity", Confidence: 0.85},
		{Text: "Zero Trust", Confidence: 0.7},
	}}
	h := newWorkerHarness(t, classifier, true)
	job := h.submit(t, classifiableText)

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Solve", got.Result.Horizon.Name)
	assert.Equal(t, "Cybersecurity", got.Result.Practice.Name)
	require.Len(t, got.Result.Topics, 1)
	assert.Equal(t, "Zero Trust", got.Result.Topics[0].Name)

	// The document blob is gone after the terminal transition.
	assert.Equal(t, 0, h.blobs.Len())
}

func TestWorkerProcessValidationFailureIsTerminal(t *testing.T) {
	t.Parallel()

	// No horizon candidate at all.
	classifier := &stubClassifier{candidates: domain.RawCandidates{
		{Text: "Cybersecurity", Confidence: 0.85},
	}}
	h := newWorkerHarness(t, classifier, true)
	job := h.submit(t, classifiableText)

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, classify.CodeNoHorizonTag, got.Error.Code)
	assert.Equal(t, 0, h.blobs.Len())
}

func TestWorkerProcessNoTextIsTerminal(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubClassifier{}, true)
	job := h.submit(t, "too short")

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeExtractionNoText, got.Error.Code)
}

func TestWorkerProcessTransientClassifierErrorIsRetryable(t *testing.T) {
	t.Parallel()

	classifier := &stubClassifier{err: classify.ErrTransient}
	h := newWorkerHarness(t, classifier, true)
	job := h.submit(t, classifiableText)

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	// The worker keeps its processing lease; the dispatcher decides
	// whether to return the job to pending.
	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestWorkerProcessMissingSnapshotIsRetryable(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubClassifier{}, false)
	job := h.submit(t, classifiableText)

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestWorkerProcessSkipsJobHeldElsewhere(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubClassifier{}, true)
	job := h.submit(t, classifiableText)

	// Another worker already holds the lease.
	_, err := h.store.Transition(context.Background(), job.ID, domain.JobStatusPending, domain.JobStatusProcessing, store.TransitionPatch{})
	require.NoError(t, err)

	err = h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestWorkerProcessMissingJobIsNoOp(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubClassifier{}, true)

	err := h.worker.Process(context.Background(), Message{JobID: uuid.New()})
	assert.NoError(t, err)
}

func TestWorkerProcessMissingBlobIsTerminal(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubClassifier{}, true)
	job := h.submit(t, classifiableText)
	require.NoError(t, h.blobs.Delete(context.Background(), job.Document.StorageKey))

	err := h.worker.Process(context.Background(), Message{JobID: job.ID})
	require.NoError(t, err)

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeExtractionFailed, got.Error.Code)
}
