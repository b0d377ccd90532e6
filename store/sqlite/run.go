package sqlite

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
	_, err := s.db.ExecContext(ctx, query, runArgs(run)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrRunAlreadyExists
		}
		return fmt.Errorf("ragonometrics/sqlite: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_runs WHERE id = ?`, runColumns)
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrRunNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *pipeline.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rag_runs
		SET status = ?, corpus_fingerprint = ?, error = ?,
		    started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`,
		string(run.Status), run.CorpusFingerprint, run.Error,
		toNullNanos(run.StartedAt), toNullNanos(run.FinishedAt), toNanos(run.UpdatedAt),
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ragonometrics.ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts pipeline.ListOpts) ([]*pipeline.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_runs WHERE 1=1`, runColumns)
	args := make([]any, 0, 5)

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.Workstream != "" {
		query += ` AND workstream = ?`
		args = append(args, opts.Workstream)
	}
	if opts.CorpusFingerprint != "" {
		query += ` AND corpus_fingerprint = ?`
		args = append(args, opts.CorpusFingerprint)
	}
	if opts.ConfigHash != "" {
		query += ` AND config_hash = ?`
		args = append(args, opts.ConfigHash)
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*pipeline.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: list runs scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateStage persists a new stage record. The (run, stage) pair is unique.
func (s *Store) CreateStage(ctx context.Context, rec *pipeline.StageRecord) error {
	query := fmt.Sprintf(`INSERT INTO rag_stages (%s) VALUES (%s)`,
		stageColumns, placeholders(14))
	_, err := s.db.ExecContext(ctx, query, stageArgs(rec)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrStageAlreadyExists
		}
		return fmt.Errorf("ragonometrics/sqlite: create stage: %w", err)
	}
	return nil
}

// UpdateStage persists the terminal update of a stage record.
func (s *Store) UpdateStage(ctx context.Context, rec *pipeline.StageRecord) error {
	args := []any{
		string(rec.Status), rec.IdempotencyKey, rec.InputHash,
		[]byte(rec.Output), rec.SkipReason, rec.Error,
	}
	var reuse any
	if rec.ReuseSourceRunID != nil {
		reuse = rec.ReuseSourceRunID.String()
	}
	args = append(args, reuse,
		toNullNanos(rec.StartedAt), toNullNanos(rec.FinishedAt), toNanos(rec.UpdatedAt),
		rec.ID.String(),
	)

	res, err := s.db.ExecContext(ctx, `
		UPDATE rag_stages
		SET status = ?, idempotency_key = ?, input_hash = ?,
		    output = ?, skip_reason = ?, error = ?, reuse_source_run_id = ?,
		    started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: update stage: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ragonometrics.ErrStageNotFound
	}
	return nil
}

// GetStage retrieves the record for one stage of a run.
func (s *Store) GetStage(ctx context.Context, runID id.RunID, stage pipeline.Stage) (*pipeline.StageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_stages WHERE run_id = ? AND stage = ?`, stageColumns)
	rec, err := scanStage(s.db.QueryRowContext(ctx, query, runID.String(), string(stage)))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrStageNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: get stage: %w", err)
	}
	return rec, nil
}

// ListStages returns all stage records of a run in pipeline order.
func (s *Store) ListStages(ctx context.Context, runID id.RunID) ([]*pipeline.StageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_stages WHERE run_id = ?`, stageColumns)
	rows, err := s.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: list stages: %w", err)
	}
	defer rows.Close()

	var recs []*pipeline.StageRecord
	for rows.Next() {
		rec, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: list stages scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
		WHERE idempotency_key = ? AND status = 'completed' AND run_id != ?
		ORDER BY created_at ASC
		LIMIT 1`, stageColumns)
	rec, err := scanStage(s.db.QueryRowContext(ctx, query, idempotencyKey, exclude.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrStageNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: find reusable stage: %w", err)
	}
	return rec, nil
}
