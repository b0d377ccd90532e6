package postgres

import (
	"context"
	"fmt"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
)

// EnqueueJob persists a new job in queued state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	query := fmt.Sprintf(`INSERT INTO rag_jobs (%s) VALUES (%s)`,
		jobColumns, placeholders(21))
	_, err := s.pool.Exec(ctx, query, jobArgs(j)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrJobAlreadyExists
		}
		return fmt.Errorf("ragonometrics/postgres: enqueue job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the single best claimable job from the given
// queues. FOR UPDATE SKIP LOCKED lets concurrent workers pick different
// rows without blocking on each other.
func (s *Store) ClaimJob(ctx context.Context, queues []string, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	if len(queues) == 0 {
		return nil, ragonometrics.ErrJobNotClaimable
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		UPDATE rag_jobs
		SET status = $1, claimed_by = $2, lease_expires_at = $3,
		    heartbeat_at = $4, attempts = attempts + 1, updated_at = $4
		WHERE id = (
			SELECT id FROM rag_jobs
			WHERE queue = ANY($5)
			  AND run_at <= $4
			  AND (
				status = 'queued'
				OR (status IN ('claimed', 'running')
					AND lease_expires_at IS NOT NULL
					AND lease_expires_at < $4)
			  )
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, jobColumns)

	j, err := scanJob(s.pool.QueryRow(ctx, query,
		string(job.StatusClaimed), workerID.String(), now.Add(lease), now, queues))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotClaimable
		}
		return nil, fmt.Errorf("ragonometrics/postgres: claim job: %w", err)
	}
	return j, nil
}

// HeartbeatJob extends the lease of a job held by workerID. A follow-up
// read distinguishes a vanished job from one that moved on without us.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE rag_jobs
		SET lease_expires_at = $3, heartbeat_at = $4, updated_at = $4
		WHERE id = $1 AND claimed_by = $2 AND status IN ('claimed', 'running')`,
		jobID.String(), workerID.String(), now.Add(lease), now,
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM rag_jobs WHERE id = $1)`, jobID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: heartbeat job lookup: %w", err)
	}
	if !exists {
		return ragonometrics.ErrJobNotFound
	}
	return ragonometrics.ErrInvalidState
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_jobs WHERE id = $1`, jobColumns)
	j, err := scanJob(s.pool.QueryRow(ctx, query, jobID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	var claimedBy string
	if !j.ClaimedBy.IsNil() {
		claimedBy = j.ClaimedBy.String()
	}
	runAt := j.RunAt
	if runAt.IsZero() {
		runAt = j.CreatedAt
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE rag_jobs
		SET status = $2, priority = $3, attempts = $4, last_error = $5,
		    claimed_by = $6, lease_expires_at = $7, run_at = $8,
		    started_at = $9, finished_at = $10, heartbeat_at = $11, updated_at = $12
		WHERE id = $1`,
		j.ID.String(), string(j.Status), j.Priority, j.Attempts, j.LastError,
		claimedBy, j.LeaseExpiresAt, runAt,
		j.StartedAt, j.FinishedAt, j.HeartbeatAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ragonometrics.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rag_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ragonometrics.ErrJobNotFound
	}
	return nil
}

// FindJobByIdempotencyKey returns the most recent non-terminal job with
// the given key.
func (s *Store) FindJobByIdempotencyKey(ctx context.Context, key string) (*job.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_jobs
		WHERE idempotency_key = $1 AND status NOT IN ('done', 'failed')
		ORDER BY created_at DESC
		LIMIT 1`, jobColumns)
	j, err := scanJob(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: find job by idempotency key: %w", err)
	}
	return j, nil
}

// ListJobsByStatus returns jobs matching the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_jobs WHERE status = $1`, jobColumns)
	args := []any{string(status)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list jobs: %w", err)
	}
	jobs, err := collectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list jobs scan: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM rag_jobs WHERE 1=1`
	args := make([]any, 0, 2)
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: count jobs: %w", err)
	}
	return count, nil
}

// PurgeTerminalJobs deletes done and failed jobs finished before the
// cutoff. Jobs with no finish timestamp fall back to their creation time.
func (s *Store) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rag_jobs
		WHERE status IN ('done', 'failed')
		  AND COALESCE(finished_at, created_at) < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: purge terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
