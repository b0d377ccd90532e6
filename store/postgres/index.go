package postgres

import (
	"context"
	"fmt"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
)

// PutIndexVersion records a built index version.
func (s *Store) PutIndexVersion(ctx context.Context, v *index.Version) error {
	query := fmt.Sprintf(`INSERT INTO rag_index_versions (%s) VALUES (%s)`,
		indexColumns, placeholders(8))
	_, err := s.pool.Exec(ctx, query, indexArgs(v)...)
	if err != nil {
		return fmt.Errorf("ragonometrics/postgres: put index version: %w", err)
	}
	return nil
}

// GetIndexVersion retrieves a version by ID.
func (s *Store) GetIndexVersion(ctx context.Context, indexID id.IndexID) (*index.Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_index_versions WHERE id = $1`, indexColumns)
	v, err := scanIndexVersion(s.pool.QueryRow(ctx, query, indexID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrIndexVersionNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: get index version: %w", err)
	}
	return v, nil
}

// LatestIndexVersion returns the most recently recorded version for a
// corpus fingerprint. An empty configHash matches any configuration.
func (s *Store) LatestIndexVersion(ctx context.Context, corpusFingerprint, configHash string) (*index.Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM rag_index_versions WHERE corpus_fingerprint = $1`, indexColumns)
	args := []any{corpusFingerprint}
	if configHash != "" {
		query += ` AND config_hash = $2`
		args = append(args, configHash)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	v, err := scanIndexVersion(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ragonometrics.ErrIndexVersionNotFound
		}
		return nil, fmt.Errorf("ragonometrics/postgres: latest index version: %w", err)
	}
	return v, nil
}

// ListIndexVersions returns all versions for a corpus, newest first.
func (s *Store) ListIndexVersions(ctx context.Context, corpusFingerprint string) ([]*index.Version, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rag_index_versions
		WHERE corpus_fingerprint = $1
		ORDER BY created_at DESC`, indexColumns)
	rows, err := s.pool.Query(ctx, query, corpusFingerprint)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list index versions: %w", err)
	}
	versions, err := collectRows(rows, scanIndexVersion)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/postgres: list index versions scan: %w", err)
	}
	return versions, nil
}
