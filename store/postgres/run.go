package postgres

import (
	"context"
	"fmt"
	"sort"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// CreateRun persists a new run in pending state.
func (s *Store) CreateRun(ctx context.Context, run *pipeline.Run) error {
	query := fmt.Sprintf(`INSERT INTO rag_runs (%s) VALUES (%s)`,
		runColumns, placeholders(13))
	_, err := s.pool.Exec(ctx, query, runArgs(run)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrRunAlreadyExists
		}
		return fmt.Errorf("ragonometrics/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_runs WHERE id = $1`, runColumns)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrRunNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *pipeline.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rag_runs
		SET status = $2, corpus_fingerprint = $3, error = $4,
		    started_at = $5, finished_at = $6, updated_at = $7
		WHERE id = $1`,
		run.ID.String(), string(run.Status), run.CorpusFingerprint, run.Error,
		run.StartedAt, run.FinishedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ragonometrics.ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts pipeline.ListOpts) ([]*pipeline.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_runs WHERE 1=1`, runColumns)
	args := make([]any, 0, 5)
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.Workstream != "" {
		query += fmt.Sprintf(" AND workstream = $%d", argIdx)
		args = append(args, opts.Workstream)
		argIdx++
	}
	if opts.CorpusFingerprint != "" {
		query += fmt.Sprintf(" AND corpus_fingerprint = $%d", argIdx)
		args = append(args, opts.CorpusFingerprint)
		argIdx++
	}
	if opts.ConfigHash != "" {
		query += fmt.Sprintf(" AND config_hash = $%d", argIdx)
		args = append(args, opts.ConfigHash)
		argIdx++
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list runs: %w", err)
	}
	runs, err := collectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list runs scan: %w", err)
	}
	return runs, nil
}

// CreateStage persists a new stage record. The (run, stage) pair is unique.
func (s *Store) CreateStage(ctx context.Context, rec *pipeline.StageRecord) error {
	query := fmt.Sprintf(`INSERT INTO rag_stages (%s) VALUES (%s)`,
		stageColumns, placeholders(14))
	_, err := s.pool.Exec(ctx, query, stageArgs(rec)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrStageAlreadyExists
		}
		return fmt.Errorf("ragonometrics/postgres: create stage: %w", err)
	}
	return nil
}

// UpdateStage persists the terminal update of a stage record.
func (s *Store) UpdateStage(ctx context.Context, rec *pipeline.StageRecord) error {
	var reuse any
	if rec.ReuseSourceRunID != nil {
		reuse = rec.ReuseSourceRunID.String()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE rag_stages
		SET status = $2, idempotency_key = $3, input_hash = $4,
		    output = $5, skip_reason = $6, error = $7, reuse_source_run_id = $8,
		    started_at = $9, finished_at = $10, updated_at = $11
		WHERE id = $1`,
		rec.ID.String(), string(rec.Status), rec.IdempotencyKey, rec.InputHash,
		[]byte(rec.Output), rec.SkipReason, rec.Error, reuse,
		rec.StartedAt, rec.FinishedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ragonometrics.ErrStageNotFound
	}
	return nil
}

// GetStage retrieves the record for one stage of a run.
func (s *Store) GetStage(ctx context.Context, runID id.RunID, stage pipeline.Stage) (*pipeline.StageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_stages WHERE run_id = $1 AND stage = $2`, stageColumns)
	rec, err := scanStage(s.pool.QueryRow(ctx, query, runID.String(), string(stage)))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrStageNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get stage: %w", err)
	}
	return rec, nil
}

// ListStages returns all stage records of a run in pipeline order.
func (s *Store) ListStages(ctx context.Context, runID id.RunID) ([]*pipeline.StageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_stages WHERE run_id = $1`, stageColumns)
	rows, err := s.pool.Query(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list stages: %w", err)
	}
	recs, err := collectRows(rows, scanStage)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list stages scan: %w", err)
	}

	order := make(map[pipeline.Stage]int, 8)
	for i, st := range pipeline.Order() {
		order[st] = i
	}
	sort.Slice(recs, func(i, j int) bool {
		return order[recs[i].Stage] < order[recs[j].Stage]
	})
	return recs, nil
}

// FindReusableStage returns the oldest completed record with the given
// idempotency key from any run other than exclude.
func (s *Store) FindReusableStage(ctx context.Context, idempotencyKey string, exclude id.RunID) (*pipeline.StageRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_stages
		WHERE idempotency_key = $1 AND status = 'completed' AND run_id != $2
		ORDER BY created_at ASC
		LIMIT 1`, stageColumns)
	rec, err := scanStage(s.pool.QueryRow(ctx, query, idempotencyKey, exclude.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrStageNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: find reusable stage: %w", err)
	}
	return rec, nil
}
