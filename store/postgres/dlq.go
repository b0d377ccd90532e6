package postgres

import (
	"context"
	"fmt"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	query := fmt.Sprintf(`INSERT INTO rag_dlq (%s) VALUES (%s)`,
		dlqColumns, placeholders(12))
	_, err := s.pool.Exec(ctx, query, dlqArgs(entry)...)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_dlq WHERE 1=1`, dlqColumns)
	args := make([]any, 0, 3)
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	query += " ORDER BY failed_at DESC"
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
		return nil, fmt.Errorf("ragonometrics/postgres: list dlq: %w", err)
	}
	entries, err := collectRows(rows, scanDLQ)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list dlq scan: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_dlq WHERE id = $1`, dlqColumns)
	e, err := scanDLQ(s.pool.QueryRow(ctx, query, entryID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrDLQNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rag_dlq SET replayed_at = NOW() WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ragonometrics.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rag_dlq WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: count dlq: %w", err)
	}
	return count, nil
}
