package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
	"github.com/badbayesian/ragonometrics-sub003/store"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ pipeline.Store = (*Store)(nil)
	_ job.Store      = (*Store)(nil)
	_ cache.Store    = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
	_ index.Store    = (*Store)(nil)
	_ store.Store    = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (or creates) the database at path and returns a Store that
// owns the connection. Busy timeout and foreign keys are set through the
// DSN; the single writer connection sidesteps SQLITE_BUSY under
// concurrent claim loops.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New creates a Store over an existing *sql.DB. The caller owns the db
// lifecycle; the Store will not close it on Close().
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs all schema migrations in order. Applied versions are
// tracked in rag_schema_migrations, so Migrate is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.logger)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection when the Store owns it (Open); a Store
// built over a caller-provided db (New) leaves it open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns n comma-joined "?" markers for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
