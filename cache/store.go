package cache

import (
	"context"
	"time"
)

// Store defines the persistence contract for cache entries.
//
// PutCache is the concurrency-critical operation: backends must implement
// it as an atomic insert-or-ignore on the strict key so two concurrent
// writers for one key result in exactly one stored row.
type Store interface {
	// PutCache inserts an entry keyed by its strict key. If the key
	// already exists the store is unchanged and ErrCacheExists is
	// returned; the caller re-reads the winner.
	PutCache(ctx context.Context, e *Entry) error

	// GetCache retrieves the entry for a strict key, or ErrCacheMiss.
	GetCache(ctx context.Context, key string) (*Entry, error)

	// GetCacheByFallback retrieves the oldest entry carrying the given
	// fallback key, or ErrCacheMiss. Oldest wins so the fallback answer
	// is stable across repeated lookups.
	GetCacheByFallback(ctx context.Context, fallbackKey string) (*Entry, error)

	// ListCacheByPaper returns all entries for a paper, oldest first.
	// Coverage queries filter these by question ID and model.
	ListCacheByPaper(ctx context.Context, paperID string) ([]*Entry, error)

	// CountCache returns the total number of cache entries.
	CountCache(ctx context.Context) (int64, error)

	// PurgeCache removes entries created before the cutoff and returns
	// how many were removed. Retention sweeps call this.
	PurgeCache(ctx context.Context, before time.Time) (int64, error)
}
