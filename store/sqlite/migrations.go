package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
)

// migration is one versioned schema step. Statements run inside a single
// transaction together with the version bookkeeping row.
type migration struct {
	version    string
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: "20250301120000",
		name:    "create_runs_and_stages",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rag_runs (
				id                 TEXT PRIMARY KEY,
				status             TEXT NOT NULL DEFAULT 'pending',
				corpus_fingerprint TEXT NOT NULL DEFAULT '',
				config_hash        TEXT NOT NULL,
				config_snapshot    BLOB NOT NULL,
				workstream         TEXT NOT NULL DEFAULT '',
				variant_arm        TEXT NOT NULL DEFAULT '',
				parent_run_id      TEXT,
				error              TEXT NOT NULL DEFAULT '',
				started_at         INTEGER,
				finished_at        INTEGER,
				created_at         INTEGER NOT NULL,
				updated_at         INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_runs_status
				ON rag_runs (status)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_runs_config
				ON rag_runs (config_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_runs_corpus
				ON rag_runs (corpus_fingerprint)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_runs_workstream
				ON rag_runs (workstream)`,
			`CREATE TABLE IF NOT EXISTS rag_stages (
				id                  TEXT PRIMARY KEY,
				run_id              TEXT NOT NULL REFERENCES rag_runs(id) ON DELETE CASCADE,
				stage               TEXT NOT NULL,
				status              TEXT NOT NULL DEFAULT 'running',
				idempotency_key     TEXT NOT NULL DEFAULT '',
				input_hash          TEXT NOT NULL DEFAULT '',
				output              BLOB,
				skip_reason         TEXT NOT NULL DEFAULT '',
				error               TEXT NOT NULL DEFAULT '',
				reuse_source_run_id TEXT,
				started_at          INTEGER,
				finished_at         INTEGER,
				created_at          INTEGER NOT NULL,
				updated_at          INTEGER NOT NULL,
				UNIQUE(run_id, stage)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_stages_reuse
				ON rag_stages (idempotency_key, created_at)
				WHERE status = 'completed'`,
		},
	},
	{
		version: "20250301120001",
		name:    "create_jobs",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rag_jobs (
				id               TEXT PRIMARY KEY,
				name             TEXT NOT NULL,
				queue            TEXT NOT NULL DEFAULT 'default',
				payload          BLOB,
				status           TEXT NOT NULL DEFAULT 'queued',
				priority         INTEGER NOT NULL DEFAULT 0,
				attempts         INTEGER NOT NULL DEFAULT 0,
				max_attempts     INTEGER NOT NULL DEFAULT 3,
				last_error       TEXT NOT NULL DEFAULT '',
				idempotency_key  TEXT NOT NULL DEFAULT '',
				claimed_by       TEXT NOT NULL DEFAULT '',
				lease_expires_at INTEGER,
				workstream       TEXT NOT NULL DEFAULT '',
				variant_arm      TEXT NOT NULL DEFAULT '',
				run_at           INTEGER NOT NULL DEFAULT 0,
				started_at       INTEGER,
				finished_at      INTEGER,
				heartbeat_at     INTEGER,
				timeout          INTEGER NOT NULL DEFAULT 0,
				created_at       INTEGER NOT NULL,
				updated_at       INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_jobs_claim
				ON rag_jobs (queue, priority DESC, created_at ASC)
				WHERE status IN ('queued', 'claimed', 'running')`,
			`CREATE INDEX IF NOT EXISTS idx_rag_jobs_status
				ON rag_jobs (status)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_jobs_idempotency
				ON rag_jobs (idempotency_key)
				WHERE idempotency_key != ''`,
		},
	},
	{
		version: "20250301120002",
		name:    "create_dlq",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rag_dlq (
				id              TEXT PRIMARY KEY,
				job_id          TEXT NOT NULL,
				job_name        TEXT NOT NULL,
				queue           TEXT NOT NULL,
				payload         BLOB,
				error           TEXT NOT NULL,
				attempts        INTEGER NOT NULL,
				max_attempts    INTEGER NOT NULL DEFAULT 3,
				idempotency_key TEXT NOT NULL DEFAULT '',
				failed_at       INTEGER NOT NULL,
				replayed_at     INTEGER,
				created_at      INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_dlq_queue
				ON rag_dlq (queue, failed_at DESC)`,
		},
	},
	{
		version: "20250301120003",
		name:    "create_cache",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rag_cache (
				id           TEXT NOT NULL,
				key          TEXT PRIMARY KEY,
				fallback_key TEXT NOT NULL DEFAULT '',
				paper_id     TEXT NOT NULL,
				question_id  TEXT NOT NULL DEFAULT '',
				question     TEXT NOT NULL,
				model        TEXT NOT NULL,
				top_k        INTEGER NOT NULL DEFAULT 0,
				context_hash TEXT NOT NULL DEFAULT '',
				answer       TEXT NOT NULL,
				created_at   INTEGER NOT NULL,
				updated_at   INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_cache_fallback
				ON rag_cache (fallback_key, created_at)
				WHERE fallback_key != ''`,
			`CREATE INDEX IF NOT EXISTS idx_rag_cache_paper
				ON rag_cache (paper_id, created_at)`,
		},
	},
	{
		version: "20250301120004",
		name:    "create_index_versions",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rag_index_versions (
				id                 TEXT PRIMARY KEY,
				corpus_fingerprint TEXT NOT NULL,
				config_hash        TEXT NOT NULL,
				embedding_model    TEXT NOT NULL DEFAULT '',
				dimensions         INTEGER NOT NULL DEFAULT 0,
				vector_count       INTEGER NOT NULL DEFAULT 0,
				created_at         INTEGER NOT NULL,
				updated_at         INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rag_index_versions_corpus
				ON rag_index_versions (corpus_fingerprint, created_at DESC)`,
		},
	},
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rag_schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %v", ragonometrics.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rag_schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: check version %s: %v", ragonometrics.ErrMigrationFailed, m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin %s: %v", ragonometrics.ErrMigrationFailed, m.version, err)
		}
		if err := applyMigration(ctx, tx, m); err != nil {
			tx.Rollback() //nolint:errcheck // rollback error is secondary
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit %s: %v", ragonometrics.ErrMigrationFailed, m.version, err)
		}
		logger.Info("migration applied",
			slog.String("version", m.version),
			slog.String("name", m.name),
		)
	}
	return nil
}

func applyMigration(ctx context.Context, tx *sql.Tx, m migration) error {
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %s (%s): %v", ragonometrics.ErrMigrationFailed, m.version, m.name, err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO rag_schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, nowNanos())
	if err != nil {
		return fmt.Errorf("%w: record %s: %v", ragonometrics.ErrMigrationFailed, m.version, err)
	}
	return nil
}
