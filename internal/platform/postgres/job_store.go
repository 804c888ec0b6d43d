package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/platform/logger"
	"github.com/phrazzld/classifier-api/internal/store"
)

// jobColumns is the column list shared by every job SELECT and
// RETURNING clause so scanJob stays in sync with the queries.
const jobColumns = `id, status, owner_key_hash, document, progress, result, error,
	created_at, updated_at, terminal_at, ttl_expires_at`

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
// Status changes go through a compare-and-swap UPDATE so concurrent workers
// racing for the same job see exactly one winner.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX, log *slog.Logger) *PostgresJobStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: log,
	}
}

// Ensure PostgresJobStore satisfies the store interface.
var _ store.JobStore = (*PostgresJobStore)(nil)

// Create persists a new job record.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	document, err := json.Marshal(job.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal job document: %w", err)
	}

	query := `
		INSERT INTO jobs (id, status, owner_key_hash, document, created_at, updated_at, ttl_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.OwnerKeyHash,
		document,
		job.CreatedAt,
		job.UpdatedAt,
		job.TTLExpiresAt,
	)
	if err != nil {
		log.Error("failed to create job",
			"job_id", job.ID,
			"error", err)
		return MapError(fmt.Errorf("failed to create job: %w", err))
	}

	return nil
}

// Get retrieves a job by ID. Jobs past their TTL are treated as absent.
func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1 AND ttl_expires_at > $2
	`

	row := s.db.QueryRowContext(ctx, query, id, time.Now().UTC())
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(fmt.Errorf("failed to get job: %w", err))
	}

	return job, nil
}

// GetForOwner retrieves a job by ID on behalf of the given owner. A job
// owned by a different key is reported as absent, not as forbidden, so
// job IDs cannot be probed across keys.
func (s *PostgresJobStore) GetForOwner(ctx context.Context, id uuid.UUID, ownerKeyHash string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1 AND owner_key_hash = $2 AND ttl_expires_at > $3
	`

	row := s.db.QueryRowContext(ctx, query, id, ownerKeyHash, time.Now().UTC())
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(fmt.Errorf("failed to get job for owner: %w", err))
	}

	return job, nil
}

// Transition performs a compare-and-swap status change. The UPDATE only
// matches when the stored status equals the expected from-status and
// the TTL has not passed, so losers of a race see zero rows and get
// ErrConflict (or ErrJobNotFound when the record is gone or expired).
func (s *PostgresJobStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.JobStatus,
	patch store.TransitionPatch,
) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !domain.ValidTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, to)
	}

	progress, result, jobErr, err := marshalPatch(patch)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var terminalAt *time.Time
	if to.IsTerminal() {
		terminalAt = &now
	}

	query := `
		UPDATE jobs
		SET status = $1,
			progress = COALESCE($2, progress),
			result = COALESCE($3, result),
			error = COALESCE($4, error),
			terminal_at = COALESCE($5, terminal_at),
			updated_at = $6
		WHERE id = $7 AND status = $8 AND ttl_expires_at > $6
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, to, progress, result, jobErr, terminalAt, now, id, from)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to transition job",
			"job_id", id,
			"from", from,
			"to", to,
			"error", err)
		return nil, MapError(fmt.Errorf("failed to transition job: %w", err))
	}

	// Zero rows: distinguish a lost race from a missing or expired job.
	var current domain.JobStatus
	checkQuery := `SELECT status FROM jobs WHERE id = $1 AND ttl_expires_at > $2`
	if err := s.db.QueryRowContext(ctx, checkQuery, id, now).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(fmt.Errorf("failed to check job status: %w", err))
	}

	log.Debug("job transition lost compare-and-swap",
		"job_id", id,
		"expected", from,
		"actual", current)
	return nil, fmt.Errorf("%w: expected %s, found %s", store.ErrConflict, from, current)
}

// UpdateProgress patches the progress of a processing job.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress domain.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND ttl_expires_at > $2
	`

	result, err := s.db.ExecContext(ctx, query, data, now, id, domain.JobStatusProcessing)
	if err != nil {
		return MapError(fmt.Errorf("failed to update job progress: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// No rows matched: either the job is gone or it is not processing.
	var current domain.JobStatus
	checkQuery := `SELECT status FROM jobs WHERE id = $1 AND ttl_expires_at > $2`
	if err := s.db.QueryRowContext(ctx, checkQuery, id, now).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrJobNotFound
		}
		return MapError(fmt.Errorf("failed to check job status: %w", err))
	}

	return fmt.Errorf("%w: progress update requires processing status, found %s", store.ErrConflict, current)
}

// Expire removes every job whose TTL has passed at the given time and
// returns the removed records so the caller can clean up their blobs.
func (s *PostgresJobStore) Expire(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM jobs
		WHERE ttl_expires_at <= $1
		RETURNING ` + jobColumns

	rows, err := s.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		log.Error("failed to expire jobs", "error", err)
		return nil, MapError(fmt.Errorf("failed to expire jobs: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var expired []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired job: %w", err)
		}
		expired = append(expired, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired jobs: %w", err)
	}

	return expired, nil
}

// ListUnfinished returns every non-expired pending or processing job,
// oldest first.
func (s *PostgresJobStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('pending', 'processing') AND ttl_expires_at > $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC())
	if err != nil {
		log.Error("failed to list unfinished jobs", "error", err)
		return nil, MapError(fmt.Errorf("failed to list unfinished jobs: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var unfinished []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unfinished job: %w", err)
		}
		unfinished = append(unfinished, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unfinished jobs: %w", err)
	}

	return unfinished, nil
}

// marshalPatch converts the optional patch fields to JSON, mapping absent
// fields to nil so COALESCE leaves the stored column untouched.
func marshalPatch(patch store.TransitionPatch) (progress, result, jobErr []byte, err error) {
	if patch.Progress != nil {
		progress, err = json.Marshal(patch.Progress)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal progress: %w", err)
		}
	}
	if patch.Result != nil {
		result, err = json.Marshal(patch.Result)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	if patch.Error != nil {
		jobErr, err = json.Marshal(patch.Error)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal job error: %w", err)
		}
	}
	return progress, result, jobErr, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one row in jobColumns order into a domain.Job.
func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job      domain.Job
		document []byte
		progress []byte
		result   []byte
		jobErr   []byte
		terminal sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.OwnerKeyHash,
		&document,
		&progress,
		&result,
		&jobErr,
		&job.CreatedAt,
		&job.UpdatedAt,
		&terminal,
		&job.TTLExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(document, &job.Document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job document: %w", err)
	}
	if len(progress) > 0 {
		job.Progress = &domain.Progress{}
		if err := json.Unmarshal(progress, job.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job progress: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = &domain.ClassificationResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}
	if len(jobErr) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(jobErr, job.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job error: %w", err)
		}
	}
	if terminal.Valid {
		t := terminal.Time
		job.TerminalAt = &t
	}

	return &job, nil
}
