// Package redis implements cache.Store using Redis, for deployments that
// want the memoized answer cache shared across machines without putting
// read-heavy lookup traffic on the relational store. Entries are stored
// as JSON strings; SET NX gives the first-writer-wins insert the cache
// contract requires. Sorted Sets indexed by creation time back the
// fallback and per-paper lookups.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	answers := redisstore.New(client)
//	svc := cache.NewService(answers, completer)
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/badbayesian/ragonometrics-sub003/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix overrides the default "rag:cache:" key prefix so several
// corpora can share one Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements cache.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	prefix string
}

// New creates a new Redis-backed answer cache. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		prefix: "rag:cache:",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ── key layout ───────────────────────────────────────────────────

// entryKey holds the JSON entry: rag:cache:entry:{key}
func (s *Store) entryKey(key string) string { return s.prefix + "entry:" + key }

// allKey is the Sorted Set of every cache key scored by creation time.
func (s *Store) allKey() string { return s.prefix + "all" }

// fallbackKey is the Sorted Set of keys sharing a fallback key,
// scored by creation time so the oldest entry stays the stable winner.
func (s *Store) fallbackKey(fb string) string { return s.prefix + "fallback:" + fb }

// paperKey is the Sorted Set of keys for one paper, scored by creation time.
func (s *Store) paperKey(paperID string) string { return s.prefix + "paper:" + paperID }
