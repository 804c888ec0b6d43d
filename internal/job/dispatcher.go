package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/store"
)

// CodeRetryExhausted is the failure code stamped on a job whose
// transient failures outlasted the retry budget.
const CodeRetryExhausted = "RETRY_EXHAUSTED"

// RetryableError marks a processing failure as transient: the job is
// returned to pending and re-enqueued after a backoff delay, until the
// attempt budget runs out.
type RetryableError struct {
	Err error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps an error so the dispatcher retries it.
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether the error asks for a retry.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Processor handles one queued message. Returning a RetryableError
// requests a bounded retry; any other error is logged and dropped
// because the processor has already recorded the terminal outcome.
type Processor interface {
	Process(ctx context.Context, msg Message) error
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// MaxAttempts bounds total processing attempts per job
	MaxAttempts int

	// RetryBaseDelay is the backoff delay before the first retry;
	// subsequent retries double it
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff delay
	RetryMaxDelay time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount:    4,
		MaxAttempts:    3,
		RetryBaseDelay: 30 * time.Second,
		RetryMaxDelay:  300 * time.Second,
	}
}

// Dispatcher runs the worker pool over the queue and owns the retry
// policy for transient failures.
type Dispatcher struct {
	queue      *Queue
	processor  Processor
	store      store.JobStore
	config     DispatcherConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(queue *Queue, processor Processor, jobs store.JobStore, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultDispatcherConfig().WorkerCount
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultDispatcherConfig().MaxAttempts
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = DefaultDispatcherConfig().RetryBaseDelay
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = config.RetryBaseDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		queue:      queue,
		processor:  processor,
		store:      jobs,
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop closes the queue and waits for in-flight work, including
// pending retry timers, to finish.
func (d *Dispatcher) Stop() {
	d.queue.Close()
	d.cancelFunc()
	d.wg.Wait()
}

// worker pulls messages until the queue closes.
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debug("starting worker", "worker_id", id)

	for msg := range d.queue.Chan() {
		d.dispatch(msg, id)
	}

	d.logger.Debug("queue closed, stopping worker", "worker_id", id)
}

// dispatch runs one message and applies the retry policy to its outcome.
func (d *Dispatcher) dispatch(msg Message, workerID int) {
	logger := d.logger.With(
		"job_id", msg.JobID,
		"attempt", msg.Attempt+1,
		"worker_id", workerID,
	)

	err := d.processor.Process(d.ctx, msg)
	if err == nil {
		return
	}

	if !IsRetryable(err) {
		// The processor recorded the terminal outcome itself.
		logger.Error("job processing failed", "error", err)
		return
	}

	logger.Warn("job processing failed transiently", "error", err)

	if msg.Attempt+1 >= d.config.MaxAttempts {
		d.failExhausted(msg, err, logger)
		return
	}

	d.scheduleRetry(msg, logger)
}

// scheduleRetry returns the job to pending and re-enqueues it after a
// backoff delay.
func (d *Dispatcher) scheduleRetry(msg Message, logger *slog.Logger) {
	if !d.returnToPending(msg, logger) {
		return
	}

	delay := d.retryDelay(msg.Attempt)
	logger.Info("scheduling job retry", "delay", delay)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case <-time.After(delay):
		case <-d.ctx.Done():
			// Shutdown: the job stays pending and is re-enqueued on the
			// next startup recovery pass.
			return
		}

		next := Message{JobID: msg.JobID, Attempt: msg.Attempt + 1}
		if err := d.queue.Enqueue(next); err != nil {
			logger.Error("failed to re-enqueue job for retry", "error", err)
		}
	}()
}

// returnToPending moves a job back to pending ahead of a retry. A
// retryable failure can occur before the worker wins the acquire
// lease, in which case the job never left pending and the conflict on
// the demote is harmless: the retry proceeds.
func (d *Dispatcher) returnToPending(msg Message, logger *slog.Logger) bool {
	_, err := d.store.Transition(d.ctx, msg.JobID, domain.JobStatusProcessing, domain.JobStatusPending, store.TransitionPatch{})
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrConflict) {
		job, getErr := d.store.Get(d.ctx, msg.JobID)
		if getErr == nil && job.Status == domain.JobStatusPending {
			return true
		}
	}
	// Lost the job on the way back to pending; nothing left to retry.
	logger.Error("failed to return job to pending for retry", "error", err)
	return false
}

// failExhausted records the terminal failure once the attempt budget
// is spent. The job may be processing or, when the final attempt never
// won the acquire lease, still pending.
func (d *Dispatcher) failExhausted(msg Message, cause error, logger *slog.Logger) {
	logger.Warn("retry attempts exhausted, failing job",
		"max_attempts", d.config.MaxAttempts)

	patch := store.TransitionPatch{Error: &domain.JobError{
		Code:    CodeRetryExhausted,
		Message: fmt.Sprintf("processing failed after %d attempts: %v", d.config.MaxAttempts, errors.Unwrap(cause)),
	}}
	_, err := d.store.Transition(d.ctx, msg.JobID, domain.JobStatusProcessing, domain.JobStatusFailed, patch)
	if errors.Is(err, store.ErrConflict) {
		_, err = d.store.Transition(d.ctx, msg.JobID, domain.JobStatusPending, domain.JobStatusFailed, patch)
	}
	if err != nil {
		logger.Error("failed to record exhausted retries", "error", err)
	}
}

// retryDelay doubles the base delay per completed attempt, capped at
// the configured maximum.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.config.RetryBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= d.config.RetryMaxDelay {
			return d.config.RetryMaxDelay
		}
	}
	if delay > d.config.RetryMaxDelay {
		return d.config.RetryMaxDelay
	}
	return delay
}
