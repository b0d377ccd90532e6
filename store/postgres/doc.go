// Package postgres provides a PostgreSQL store backend using pgx/v5.
//
// Job claiming uses FOR UPDATE SKIP LOCKED so concurrent workers on a
// shared database never contend on the same row. All timestamps are
// TIMESTAMPTZ; lease expiries are computed on the client clock so the
// semantics match the other backends.
package postgres
