package postgres

import (
	"context"
	"fmt"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/cache"
)

// PutCache inserts an entry keyed by its strict key. A duplicate key
// leaves the store unchanged and reports ErrCacheExists so the caller
// re-reads the winner.
func (s *Store) PutCache(ctx context.Context, e *cache.Entry) error {
	query := fmt.Sprintf(`INSERT INTO rag_cache (%s) VALUES (%s)`,
		cacheColumns, placeholders(12))
	_, err := s.pool.Exec(ctx, query, cacheArgs(e)...)
	if err != nil {
		if isDuplicateKey(err) {
			return ragonometrics.ErrCacheExists
		}
		return fmt.Errorf("ragonometrics/postgres: put cache: %w", err)
	}
	return nil
}

// GetCache retrieves the entry for a strict key.
func (s *Store) GetCache(ctx context.Context, key string) (*cache.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_cache WHERE key = $1`, cacheColumns)
	e, err := scanCache(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrCacheMiss
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get cache: %w", err)
	}
	return e, nil
}

// GetCacheByFallback retrieves the oldest entry carrying the given
// fallback key. Oldest wins so repeated lookups stay stable.
func (s *Store) GetCacheByFallback(ctx context.Context, fallbackKey string) (*cache.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_cache
		WHERE fallback_key = $1
		ORDER BY created_at ASC
		LIMIT 1`, cacheColumns)
	e, err := scanCache(s.pool.QueryRow(ctx, query, fallbackKey))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrCacheMiss
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get cache by fallback: %w", err)
	}
	return e, nil
}

// ListCacheByPaper returns all entries for a paper, oldest first.
func (s *Store) ListCacheByPaper(ctx context.Context, paperID string) ([]*cache.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_cache
		WHERE paper_id = $1
		ORDER BY created_at ASC`, cacheColumns)
	rows, err := s.pool.Query(ctx, query, paperID)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list cache by paper: %w", err)
	}
	entries, err := collectRows(rows, scanCache)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list cache scan: %w", err)
	}
	return entries, nil
}

// CountCache returns the total number of cache entries.
func (s *Store) CountCache(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: count cache: %w", err)
	}
	return count, nil
}

// PurgeCache removes entries created before the cutoff.
func (s *Store) PurgeCache(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rag_cache WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/postgres: purge cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
