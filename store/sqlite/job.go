package sqlite

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
	_, err := s.db.ExecContext(ctx, query, jobArgs(j)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrJobAlreadyExists
		}
		return fmt.Errorf("ragonometrics/sqlite: enqueue job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the single best claimable job from the given
// queues. The subquery selects the winner (highest priority, then oldest)
// and the enclosing UPDATE stamps the claim in the same statement, so two
// workers racing on one connectionless database can never claim the same
// job inside one lease window.
func (s *Store) ClaimJob(ctx context.Context, queues []string, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	if len(queues) == 0 {
		return nil, ragonometrics.ErrJobNotClaimable
	}

	now := time.Now().UTC()
	nowNs := toNanos(now)

	query := fmt.Sprintf(`
		UPDATE rag_jobs
		SET status = ?, claimed_by = ?, lease_expires_at = ?,
		    heartbeat_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM rag_jobs
			WHERE queue IN (%s)
			  AND run_at <= ?
			  AND (
				status = 'queued'
				OR (status IN ('claimed', 'running')
					AND lease_expires_at IS NOT NULL
					AND lease_expires_at < ?)
			  )
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		)
		RETURNING %s`, placeholders(len(queues)), jobColumns)

	args := []any{
		string(job.StatusClaimed), workerID.String(), toNanos(now.Add(lease)),
		nowNs, nowNs,
	}
	for _, q := range queues {
		args = append(args, q)
	}
	args = append(args, nowNs, nowNs)

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotClaimable
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: claim job: %w", err)
	}
	return j, nil
}

// HeartbeatJob extends the lease of a job held by workerID. A follow-up
// read distinguishes a vanished job from one that moved on without us.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE rag_jobs
		SET lease_expires_at = ?, heartbeat_at = ?, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status IN ('claimed', 'running')`,
		toNanos(now.Add(lease)), toNanos(now), toNanos(now),
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: heartbeat job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rag_jobs WHERE id = ?`, jobID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: heartbeat job lookup: %w", err)
	}
	if exists == 0 {
		return ragonometrics.ErrJobNotFound
	}
	return ragonometrics.ErrInvalidState
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_jobs WHERE id = ?`, jobColumns)
	j, err := scanJob(s.db.QueryRowContext(ctx, query, jobID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	var claimedBy string
	if !j.ClaimedBy.IsNil() {
		claimedBy = j.ClaimedBy.String()
	}
	var runAt int64
	if !j.RunAt.IsZero() {
		runAt = toNanos(j.RunAt)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE rag_jobs
		SET status = ?, priority = ?, attempts = ?, last_error = ?,
		    claimed_by = ?, lease_expires_at = ?, run_at = ?,
		    started_at = ?, finished_at = ?, heartbeat_at = ?, updated_at = ?
		WHERE id = ?`,
		string(j.Status), j.Priority, j.Attempts, j.LastError,
		claimedBy, toNullNanos(j.LeaseExpiresAt), runAt,
		toNullNanos(j.StartedAt), toNullNanos(j.FinishedAt),
		toNullNanos(j.HeartbeatAt), toNanos(j.UpdatedAt),
		j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ragonometrics.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rag_jobs WHERE id = ?`, jobID.String())
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ragonometrics.ErrJobNotFound
	}
	return nil
}

// FindJobByIdempotencyKey returns the most recent non-terminal job with
// the given key.
func (s *Store) FindJobByIdempotencyKey(ctx context.Context, key string) (*job.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_jobs
		WHERE idempotency_key = ? AND status NOT IN ('done', 'failed')
		ORDER BY created_at DESC
		LIMIT 1`, jobColumns)
	j, err := scanJob(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrJobNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: find job by idempotency key: %w", err)
	}
	return j, nil
}

// ListJobsByStatus returns jobs matching the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_jobs WHERE status = ?`, jobColumns)
	args := []any{string(status)}

	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: list jobs scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM rag_jobs WHERE 1=1`
	args := make([]any, 0, 2)

	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ragonometrics/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// PurgeTerminalJobs deletes done and failed jobs finished before the
// cutoff. Jobs with no finish timestamp fall back to their creation time.
func (s *Store) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rag_jobs
		WHERE status IN ('done', 'failed')
		  AND COALESCE(finished_at, created_at) < ?`,
		toNanos(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/sqlite: purge terminal jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
