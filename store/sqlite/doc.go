// Package sqlite implements store.Store on a single SQLite database via
// database/sql and mattn/go-sqlite3.
//
// SQLite has no FOR UPDATE SKIP LOCKED, so ClaimJob uses the
// UPDATE ... WHERE id IN (SELECT ... LIMIT 1) RETURNING pattern: the
// update itself is the atomic claim, serialized by SQLite's writer lock.
//
// Timestamps are stored as integer Unix nanoseconds. Lease-expiry and
// retention comparisons then stay plain integer comparisons instead of
// depending on text collation of formatted times.
package sqlite
