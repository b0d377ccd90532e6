package sqlite

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
	_, err := s.db.ExecContext(ctx, query, dlqArgs(entry)...)
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_dlq WHERE 1=1`, dlqColumns)
	args := make([]any, 0, 3)

	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}
	query += ` ORDER BY failed_at DESC`
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
		return nil, fmt.Errorf("ragonometrics/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, fmt.Errorf("ragonometrics/sqlite: list dlq scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_dlq WHERE id = ?`, dlqColumns)
	e, err := scanDLQ(s.db.QueryRowContext(ctx, query, entryID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrDLQNotFound
		}
		return nil, fmt.Errorf("ragonometrics/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rag_dlq SET replayed_at = ? WHERE id = ?`,
		nowNanos(), entryID.String())
	if err != nil {
		return fmt.Errorf("ragonometrics/sqlite: replay dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ragonometrics.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rag_dlq WHERE failed_at < ?`, toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/sqlite: purge dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ragonometrics/sqlite: count dlq: %w", err)
	}
	return count, nil
}
