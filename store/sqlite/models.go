package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// ── time helpers ──────────────────────────────────────────────────

func nowNanos() int64 {
	return time.Now().UTC().UnixNano()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

// ── run rows ──────────────────────────────────────────────────────

const runColumns = `id, status, corpus_fingerprint, config_hash, config_snapshot,
	workstream, variant_arm, parent_run_id, error,
	started_at, finished_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*pipeline.Run, error) {
	var (
		run         pipeline.Run
		idStr       string
		status      string
		parent      sql.NullString
		started     sql.NullInt64
		finished    sql.NullInt64
		created     int64
		updated     int64
		snapshotRaw []byte
	)
	err := row.Scan(&idStr, &status, &run.CorpusFingerprint, &run.ConfigHash, &snapshotRaw,
		&run.Workstream, &run.VariantArm, &parent, &run.Error,
		&started, &finished, &created, &updated)
	if err != nil {
		return nil, err
	}

	runID, err := id.ParseRunID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse run id %q: %w", idStr, err)
	}
	run.ID = runID
	run.Status = pipeline.RunStatus(status)
	run.ConfigSnapshot = snapshotRaw
	run.StartedAt = fromNullNanos(started)
	run.FinishedAt = fromNullNanos(finished)
	run.CreatedAt = fromNanos(created)
	run.UpdatedAt = fromNanos(updated)

	if parent.Valid && parent.String != "" {
		parentID, perr := id.ParseRunID(parent.String)
		if perr != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: parse parent run id %q: %w", parent.String, perr)
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
		toNullNanos(run.StartedAt), toNullNanos(run.FinishedAt),
		toNanos(run.CreatedAt), toNanos(run.UpdatedAt),
	}
}

// ── stage rows ────────────────────────────────────────────────────

const stageColumns = `id, run_id, stage, status, idempotency_key, input_hash,
	output, skip_reason, error, reuse_source_run_id,
	started_at, finished_at, created_at, updated_at`

func scanStage(row rowScanner) (*pipeline.StageRecord, error) {
	var (
		rec      pipeline.StageRecord
		idStr    string
		runIDStr string
		stage    string
		status   string
		output   []byte
		reuse    sql.NullString
		started  sql.NullInt64
		finished sql.NullInt64
		created  int64
		updated  int64
	)
	err := row.Scan(&idStr, &runIDStr, &stage, &status, &rec.IdempotencyKey, &rec.InputHash,
		&output, &rec.SkipReason, &rec.Error, &reuse,
		&started, &finished, &created, &updated)
	if err != nil {
		return nil, err
	}

	stageID, err := id.ParseStageID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse stage id %q: %w", idStr, err)
	}
	runID, err := id.ParseRunID(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse run id %q: %w", runIDStr, err)
	}
	rec.ID = stageID
	rec.RunID = runID
	rec.Stage = pipeline.Stage(stage)
	rec.Status = pipeline.StageStatus(status)
	rec.Output = output
	rec.StartedAt = fromNullNanos(started)
	rec.FinishedAt = fromNullNanos(finished)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)

	if reuse.Valid && reuse.String != "" {
		src, rerr := id.ParseRunID(reuse.String)
		if rerr != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: parse reuse run id %q: %w", reuse.String, rerr)
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
		toNullNanos(rec.StartedAt), toNullNanos(rec.FinishedAt),
		toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt),
	}
}

// ── job rows ──────────────────────────────────────────────────────

const jobColumns = `id, name, queue, payload, status, priority,
	attempts, max_attempts, last_error, idempotency_key,
	claimed_by, lease_expires_at, workstream, variant_arm,
	run_at, started_at, finished_at, heartbeat_at, timeout,
	created_at, updated_at`

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		status    string
		claimedBy string
		lease     sql.NullInt64
		runAt     int64
		started   sql.NullInt64
		finished  sql.NullInt64
		heartbeat sql.NullInt64
		timeout   int64
		created   int64
		updated   int64
	)
	err := row.Scan(&idStr, &j.Name, &j.Queue, &j.Payload, &status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.IdempotencyKey,
		&claimedBy, &lease, &j.Lineage.Workstream, &j.Lineage.VariantArm,
		&runAt, &started, &finished, &heartbeat, &timeout,
		&created, &updated)
	if err != nil {
		return nil, err
	}

	jobID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse job id %q: %w", idStr, err)
	}
	j.ID = jobID
	j.Status = job.Status(status)
	if runAt != 0 {
		j.RunAt = fromNanos(runAt)
	}
	j.LeaseExpiresAt = fromNullNanos(lease)
	j.StartedAt = fromNullNanos(started)
	j.FinishedAt = fromNullNanos(finished)
	j.HeartbeatAt = fromNullNanos(heartbeat)
	j.Timeout = time.Duration(timeout)
	j.CreatedAt = fromNanos(created)
	j.UpdatedAt = fromNanos(updated)

	if claimedBy != "" {
		workerID, werr := id.ParseWorkerID(claimedBy)
		if werr != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: parse worker id %q: %w", claimedBy, werr)
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
	var runAt int64
	if !j.RunAt.IsZero() {
		runAt = toNanos(j.RunAt)
	}
	return []any{
		j.ID.String(), j.Name, j.Queue, j.Payload, string(j.Status), j.Priority,
		j.Attempts, j.MaxAttempts, j.LastError, j.IdempotencyKey,
		claimedBy, toNullNanos(j.LeaseExpiresAt), j.Lineage.Workstream, j.Lineage.VariantArm,
		runAt, toNullNanos(j.StartedAt), toNullNanos(j.FinishedAt),
		toNullNanos(j.HeartbeatAt), int64(j.Timeout),
		toNanos(j.CreatedAt), toNanos(j.UpdatedAt),
	}
}

// ── dlq rows ──────────────────────────────────────────────────────

const dlqColumns = `id, job_id, job_name, queue, payload, error,
	attempts, max_attempts, idempotency_key, failed_at, replayed_at, created_at`

func scanDLQ(row rowScanner) (*dlq.Entry, error) {
	var (
		e        dlq.Entry
		idStr    string
		jobIDStr string
		failed   int64
		replayed sql.NullInt64
		created  int64
	)
	err := row.Scan(&idStr, &jobIDStr, &e.JobName, &e.Queue, &e.Payload, &e.Error,
		&e.Attempts, &e.MaxAttempts, &e.IdempotencyKey, &failed, &replayed, &created)
	if err != nil {
		return nil, err
	}

	entryID, err := id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse dlq id %q: %w", idStr, err)
	}
	jobID, err := id.ParseJobID(jobIDStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse job id %q: %w", jobIDStr, err)
	}
	e.ID = entryID
	e.JobID = jobID
	e.FailedAt = fromNanos(failed)
	e.ReplayedAt = fromNullNanos(replayed)
	e.CreatedAt = fromNanos(created)
	return &e, nil
}

func dlqArgs(e *dlq.Entry) []any {
	return []any{
		e.ID.String(), e.JobID.String(), e.JobName, e.Queue, e.Payload, e.Error,
		e.Attempts, e.MaxAttempts, e.IdempotencyKey,
		toNanos(e.FailedAt), toNullNanos(e.ReplayedAt), toNanos(e.CreatedAt),
	}
}

// ── cache rows ────────────────────────────────────────────────────

const cacheColumns = `id, key, fallback_key, paper_id, question_id, question,
	model, top_k, context_hash, answer, created_at, updated_at`

func scanCache(row rowScanner) (*cache.Entry, error) {
	var (
		e       cache.Entry
		idStr   string
		created int64
		updated int64
	)
	err := row.Scan(&idStr, &e.Key, &e.FallbackKey, &e.PaperID, &e.QuestionID, &e.Question,
		&e.Model, &e.TopK, &e.ContextHash, &e.Answer, &created, &updated)
	if err != nil {
		return nil, err
	}

	cacheID, err := id.ParseCacheID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse cache id %q: %w", idStr, err)
	}
	e.ID = cacheID
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return &e, nil
}

func cacheArgs(e *cache.Entry) []any {
	return []any{
		e.ID.String(), e.Key, e.FallbackKey, e.PaperID, e.QuestionID, e.Question,
		e.Model, e.TopK, e.ContextHash, e.Answer,
		toNanos(e.CreatedAt), toNanos(e.UpdatedAt),
	}
}

// ── index version rows ────────────────────────────────────────────

const indexColumns = `id, corpus_fingerprint, config_hash, embedding_model,
	dimensions, vector_count, created_at, updated_at`

func scanIndexVersion(row rowScanner) (*index.Version, error) {
	var (
		v       index.Version
		idStr   string
		created int64
		updated int64
	)
	err := row.Scan(&idStr, &v.CorpusFingerprint, &v.ConfigHash, &v.EmbeddingModel,
		&v.Dimensions, &v.VectorCount, &created, &updated)
	if err != nil {
		return nil, err
	}

	indexID, err := id.ParseIndexID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: parse index id %q: %w", idStr, err)
	}
	v.ID = indexID
	v.CreatedAt = fromNanos(created)
	v.UpdatedAt = fromNanos(updated)
	return &v, nil
}

func indexArgs(v *index.Version) []any {
	return []any{
		v.ID.String(), v.CorpusFingerprint, v.ConfigHash, v.EmbeddingModel,
		v.Dimensions, v.VectorCount,
		toNanos(v.CreatedAt), toNanos(v.UpdatedAt),
	}
}
