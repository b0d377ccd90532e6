package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// ── run rows ──────────────────────────────────────────────────────

const runColumns = `id, status, corpus_fingerprint, config_hash, config_snapshot,
	workstream, variant_arm, parent_run_id, error,
	started_at, finished_at, created_at, updated_at`

func scanRun(row pgx.Row) (*pipeline.Run, error) {
	var (
		run    pipeline.Run
		idStr  string
		status string
		parent sql.NullString
	)
	err := row.Scan(&idStr, &status, &run.CorpusFingerprint, &run.ConfigHash, &run.ConfigSnapshot,
		&run.Workstream, &run.VariantArm, &parent, &run.Error,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	runID, err := id.ParseRunID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse run id %q: %w", idStr, err)
	}
	run.ID = runID
	run.Status = pipeline.RunStatus(status)

	if parent.Valid && parent.String != "" {
		parentID, perr := id.ParseRunID(parent.String)
		if perr != nil {
			return nil, fmt.Errorf("ragonometrics/postgres: parse parent run id %q: %w", parent.String, perr)
		}
		run.ParentRunID = &parentID
	}
	return &run, nil
}

func runArgs(run *pipeline.Run) []any {
	var parent sql.NullString
	if run.ParentRunID != nil {
		parent = sql.NullString{String: run.ParentRunID.String(), Valid: true}
	}
	return []any{
		run.ID.String(), string(run.Status), run.CorpusFingerprint, run.ConfigHash, run.ConfigSnapshot,
		run.Workstream, run.VariantArm, parent, run.Error,
		run.StartedAt, run.FinishedAt, run.CreatedAt, run.UpdatedAt,
	}
}

// ── stage rows ────────────────────────────────────────────────────

const stageColumns = `id, run_id, stage, status, idempotency_key, input_hash,
	output, skip_reason, error, reuse_source_run_id,
	started_at, finished_at, created_at, updated_at`

func scanStage(row pgx.Row) (*pipeline.StageRecord, error) {
	var (
		rec      pipeline.StageRecord
		idStr    string
		runIDStr string
		stage    string
		status   string
		output   []byte
		reuse    sql.NullString
	)
	err := row.Scan(&idStr, &runIDStr, &stage, &status, &rec.IdempotencyKey, &rec.InputHash,
		&output, &rec.SkipReason, &rec.Error, &reuse,
		&rec.StartedAt, &rec.FinishedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	stageID, err := id.ParseStageID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse stage id %q: %w", idStr, err)
	}
	runID, err := id.ParseRunID(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse run id %q: %w", runIDStr, err)
	}
	rec.ID = stageID
	rec.RunID = runID
	rec.Stage = pipeline.Stage(stage)
	rec.Status = pipeline.StageStatus(status)
	rec.Output = output

	if reuse.Valid && reuse.String != "" {
		src, rerr := id.ParseRunID(reuse.String)
		if rerr != nil {
			return nil, fmt.Errorf("ragonometrics/postgres: parse reuse run id %q: %w", reuse.String, rerr)
		}
		rec.ReuseSourceRunID = &src
	}
	return &rec, nil
}

func stageArgs(rec *pipeline.StageRecord) []any {
	var reuse sql.NullString
	if rec.ReuseSourceRunID != nil {
		reuse = sql.NullString{String: rec.ReuseSourceRunID.String(), Valid: true}
	}
	return []any{
		rec.ID.String(), rec.RunID.String(), string(rec.Stage), string(rec.Status),
		rec.IdempotencyKey, rec.InputHash,
		[]byte(rec.Output), rec.SkipReason, rec.Error, reuse,
		rec.StartedAt, rec.FinishedAt, rec.CreatedAt, rec.UpdatedAt,
	}
}

// ── job rows ──────────────────────────────────────────────────────

const jobColumns = `id, name, queue, payload, status, priority,
	attempts, max_attempts, last_error, idempotency_key,
	claimed_by, lease_expires_at, workstream, variant_arm,
	run_at, started_at, finished_at, heartbeat_at, timeout,
	created_at, updated_at`

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		status    string
		claimedBy string
		timeoutNs int64
	)
	err := row.Scan(&idStr, &j.Name, &j.Queue, &j.Payload, &status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.IdempotencyKey,
		&claimedBy, &j.LeaseExpiresAt, &j.Lineage.Workstream, &j.Lineage.VariantArm,
		&j.RunAt, &j.StartedAt, &j.FinishedAt, &j.HeartbeatAt, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	jobID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse job id %q: %w", idStr, err)
	}
	j.ID = jobID
	j.Status = job.Status(status)
	j.Timeout = time.Duration(timeoutNs)

	if claimedBy != "" {
		workerID, werr := id.ParseWorkerID(claimedBy)
		if werr != nil {
			return nil, fmt.Errorf("ragonometrics/postgres: parse worker id %q: %w", claimedBy, werr)
		}
		j.ClaimedBy = workerID
	}
	return &j, nil
}

func jobArgs(j *job.Job) []any {
	var claimedBy string
	if !j.ClaimedBy.IsNil() {
		claimedBy = j.ClaimedBy.String()
	}
	runAt := j.RunAt
	if runAt.IsZero() {
		runAt = j.CreatedAt
	}
	return []any{
		j.ID.String(), j.Name, j.Queue, j.Payload, string(j.Status), j.Priority,
		j.Attempts, j.MaxAttempts, j.LastError, j.IdempotencyKey,
		claimedBy, j.LeaseExpiresAt, j.Lineage.Workstream, j.Lineage.VariantArm,
		runAt, j.StartedAt, j.FinishedAt, j.HeartbeatAt, int64(j.Timeout),
		j.CreatedAt, j.UpdatedAt,
	}
}

// collectRows scans every row with the given scanner.
func collectRows[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ── dlq rows ──────────────────────────────────────────────────────

const dlqColumns = `id, job_id, job_name, queue, payload, error,
	attempts, max_attempts, idempotency_key, failed_at, replayed_at, created_at`

func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e        dlq.Entry
		idStr    string
		jobIDStr string
	)
	err := row.Scan(&idStr, &jobIDStr, &e.JobName, &e.Queue, &e.Payload, &e.Error,
		&e.Attempts, &e.MaxAttempts, &e.IdempotencyKey, &e.FailedAt, &e.ReplayedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	entryID, err := id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse dlq id %q: %w", idStr, err)
	}
	jobID, err := id.ParseJobID(jobIDStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse job id %q: %w", jobIDStr, err)
	}
	e.ID = entryID
	e.JobID = jobID
	return &e, nil
}

func dlqArgs(e *dlq.Entry) []any {
	return []any{
		e.ID.String(), e.JobID.String(), e.JobName, e.Queue, e.Payload, e.Error,
		e.Attempts, e.MaxAttempts, e.IdempotencyKey,
		e.FailedAt, e.ReplayedAt, e.CreatedAt,
	}
}

// ── cache rows ────────────────────────────────────────────────────

const cacheColumns = `id, key, fallback_key, paper_id, question_id, question,
	model, top_k, context_hash, answer, created_at, updated_at`

func scanCache(row pgx.Row) (*cache.Entry, error) {
	var (
		e     cache.Entry
		idStr string
	)
	err := row.Scan(&idStr, &e.Key, &e.FallbackKey, &e.PaperID, &e.QuestionID, &e.Question,
		&e.Model, &e.TopK, &e.ContextHash, &e.Answer, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cacheID, err := id.ParseCacheID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse cache id %q: %w", idStr, err)
	}
	e.ID = cacheID
	return &e, nil
}

func cacheArgs(e *cache.Entry) []any {
	return []any{
		e.ID.String(), e.Key, e.FallbackKey, e.PaperID, e.QuestionID, e.Question,
		e.Model, e.TopK, e.ContextHash, e.Answer,
		e.CreatedAt, e.UpdatedAt,
	}
}

// ── index version rows ────────────────────────────────────────────

const indexColumns = `id, corpus_fingerprint, config_hash, embedding_model,
	dimensions, vector_count, created_at, updated_at`

func scanIndexVersion(row pgx.Row) (*index.Version, error) {
	var (
		v     index.Version
		idStr string
	)
	err := row.Scan(&idStr, &v.CorpusFingerprint, &v.ConfigHash, &v.EmbeddingModel,
		&v.Dimensions, &v.VectorCount, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	indexID, err := id.ParseIndexID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: parse index id %q: %w", idStr, err)
	}
	v.ID = indexID
	return &v, nil
}

func indexArgs(v *index.Version) []any {
	return []any{
		v.ID.String(), v.CorpusFingerprint, v.ConfigHash, v.EmbeddingModel,
		v.Dimensions, v.VectorCount,
		v.CreatedAt, v.UpdatedAt,
	}
}
