package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitagrawal/finsight/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, filename, query, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Filename, job.Query, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateJob
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, query, status, error_message, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Filename, &j.Query, &j.Status, &j.ErrorMessage,
		&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// DeleteJob removes a job row. Used only as submission-time compensation when
// the dispatch message could not be enqueued; processed jobs are never deleted.
func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimJob atomically moves a job from pending to processing. The single
// compare-and-set statement serializes concurrent claims: of two executors
// holding redelivered copies of the same message, exactly one wins and the
// other gets ErrClaimConflict.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.JobStatusProcessing, time.Now().UTC(), models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Lost the race, or the job never existed. Tell the caller which.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("claim job status check: %w", err)
	}
	return fmt.Errorf("%w: status is %s", ErrClaimConflict, status)
}

func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, status string, opts ...TransitionOption) error {
	params := &transitionParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if !models.ValidTransition(currentStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if models.Terminal(status) {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	// Re-check the status in the WHERE clause so a concurrent transition that
	// slipped in after the read cannot be overwritten (idempotent transitions).
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s (lost race)", ErrInvalidTransition, currentStatus, status)
	}
	return nil
}

// --- Results ---

func (s *PostgresStore) CreateResult(ctx context.Context, result *models.Result) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (job_id, filename, query, analysis, processing_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.JobID, result.Filename, result.Query, result.Analysis,
		result.ProcessingTime, result.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrResultExists
		}
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, jobID uuid.UUID) (*models.Result, error) {
	var r models.Result
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, filename, query, analysis, processing_time, created_at
		 FROM results WHERE job_id = $1`, jobID,
	).Scan(&r.JobID, &r.Filename, &r.Query, &r.Analysis, &r.ProcessingTime, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, limit, offset int) ([]*models.Result, int, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM results`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_id, filename, query, analysis, processing_time, created_at
		 FROM results ORDER BY created_at DESC, job_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		var r models.Result
		if err := rows.Scan(&r.JobID, &r.Filename, &r.Query, &r.Analysis,
			&r.ProcessingTime, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &r)
	}
	return results, total, rows.Err()
}

// --- Activity ---

func (s *PostgresStore) RecordActivity(ctx context.Context, rec *models.ActivityRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_activity (job_id, client_ip, file_size, query_length, success, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.JobID, rec.ClientIP, rec.FileSize, rec.QueryLength, rec.Success, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{JobsByStatus: map[string]int64{}}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		stats.JobsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(processing_time), 0) FROM results`,
	).Scan(&stats.AvgProcessingTimeSecs)
	if err != nil {
		return nil, fmt.Errorf("average processing time: %w", err)
	}

	var attempts, successes int64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE success) FROM user_activity`,
	).Scan(&attempts, &successes)
	if err != nil {
		return nil, fmt.Errorf("activity counts: %w", err)
	}
	if attempts > 0 {
		stats.SuccessRate = float64(successes) / float64(attempts) * 100
	}

	return stats, nil
}

// --- Reconciliation ---

// FindUnreconciled returns jobs stuck in processing even though a result row
// exists. This is the narrow window where the result write committed but the
// completed transition did not; the reconciler repairs it.
func (s *PostgresStore) FindUnreconciled(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT j.id FROM jobs j
		 JOIN results r ON r.job_id = j.id
		 WHERE j.status = $1
		 LIMIT $2`, models.JobStatusProcessing, limit)
	if err != nil {
		return nil, fmt.Errorf("find unreconciled jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
