package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/store"
)

// recordingProcessor scripts the outcome of each attempt and records
// the messages it saw.
type recordingProcessor struct {
	mu       sync.Mutex
	outcomes []error
	seen     []Message
	done     chan struct{}
}

func newRecordingProcessor(outcomes ...error) *recordingProcessor {
	return &recordingProcessor{
		outcomes: outcomes,
		done:     make(chan struct{}),
	}
}

func (p *recordingProcessor) Process(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen = append(p.seen, msg)
	var err error
	if len(p.seen) <= len(p.outcomes) {
		err = p.outcomes[len(p.seen)-1]
	}
	if len(p.seen) == len(p.outcomes) {
		close(p.done)
	}
	return err
}

func (p *recordingProcessor) messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.seen...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for processor")
	}
}

func seedPendingJob(t *testing.T, s *store.MemoryJobStore) *domain.Job {
	t.Helper()

	j, err := domain.NewJob(domain.DocumentRef{
		Filename:   "doc.txt",
		SizeBytes:  10,
		MimeType:   "text/plain",
		StorageKey: "jobs/x/doc.txt",
	}, "owner", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), j))
	return j
}

func seedProcessingJob(t *testing.T, s *store.MemoryJobStore) *domain.Job {
	t.Helper()

	j := seedPendingJob(t, s)
	_, err := s.Transition(context.Background(), j.ID, domain.JobStatusPending, domain.JobStatusProcessing, store.TransitionPatch{})
	require.NoError(t, err)
	return j
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount:    2,
		MaxAttempts:    3,
		RetryBaseDelay: 5 * time.Millisecond,
		RetryMaxDelay:  20 * time.Millisecond,
	}
}

func TestDispatcherSuccessNeedsNoRetry(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	proc := newRecordingProcessor(nil)
	d := NewDispatcher(q, proc, s, testDispatcherConfig(), slog.Default())

	job := seedProcessingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	assert.Len(t, proc.messages(), 1)
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	// Fail transiently once, then succeed.
	proc := newRecordingProcessor(Retryable(errors.New("source flaked")), nil)
	d := NewDispatcher(q, proc, s, testDispatcherConfig(), slog.Default())

	job := seedProcessingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	msgs := proc.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Attempt)
	assert.Equal(t, 1, msgs[1].Attempt)

	// The retry path put the job back through pending; the second
	// (successful) attempt left it wherever the processor did, so here
	// it is still pending because the scripted processor never touched
	// the store.
	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestDispatcherFailsAfterExhaustingAttempts(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	cause := errors.New("source down")
	proc := newRecordingProcessor(
		Retryable(cause),
		Retryable(cause),
		Retryable(cause),
	)

	cfg := testDispatcherConfig()
	d := NewDispatcher(q, proc, s, cfg, slog.Default())

	job := seedProcessingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	require.Len(t, proc.messages(), cfg.MaxAttempts)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeRetryExhausted, got.Error.Code)
}

// A transient failure can hit before the worker acquires the job, for
// example when the store errors on the acquire itself. The job is then
// still pending, and the retry must proceed rather than strand it.
func TestDispatcherRetriesJobStillPending(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	proc := newRecordingProcessor(Retryable(errors.New("acquire flaked")), nil)
	d := NewDispatcher(q, proc, s, testDispatcherConfig(), slog.Default())

	job := seedPendingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	msgs := proc.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[1].Attempt)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestDispatcherFailsExhaustedJobStillPending(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	cause := errors.New("acquire flaked")
	proc := newRecordingProcessor(
		Retryable(cause),
		Retryable(cause),
		Retryable(cause),
	)

	cfg := testDispatcherConfig()
	d := NewDispatcher(q, proc, s, cfg, slog.Default())

	job := seedPendingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	require.Len(t, proc.messages(), cfg.MaxAttempts)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeRetryExhausted, got.Error.Code)
}

func TestDispatcherDropsNonRetryableErrors(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryJobStore()
	q := NewQueue(10)
	proc := newRecordingProcessor(errors.New("terminal, already recorded"))
	d := NewDispatcher(q, proc, s, testDispatcherConfig(), slog.Default())

	job := seedProcessingJob(t, s)
	require.NoError(t, q.Enqueue(Message{JobID: job.ID}))

	d.Start()
	waitFor(t, proc.done)
	d.Stop()

	assert.Len(t, proc.messages(), 1)
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewQueue(1), newRecordingProcessor(), store.NewMemoryJobStore(), DispatcherConfig{
		WorkerCount:    1,
		MaxAttempts:    5,
		RetryBaseDelay: 30 * time.Second,
		RetryMaxDelay:  300 * time.Second,
	}, slog.Default())

	assert.Equal(t, 30*time.Second, d.retryDelay(0))
	assert.Equal(t, 60*time.Second, d.retryDelay(1))
	assert.Equal(t, 120*time.Second, d.retryDelay(2))
	assert.Equal(t, 240*time.Second, d.retryDelay(3))
	assert.Equal(t, 300*time.Second, d.retryDelay(4))
	assert.Equal(t, 300*time.Second, d.retryDelay(10))
}
