package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/cache"
)

// PutCache inserts an entry keyed by its strict key. SET NX makes the
// insert first-writer-wins; a losing writer gets ErrCacheExists and
// re-reads the winner.
func (s *Store) PutCache(ctx context.Context, e *cache.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ragonometrics/redis: marshal cache entry: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.entryKey(e.Key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("ragonometrics/redis: put cache: %w", err)
	}
	if !ok {
		return ragonometrics.ErrCacheExists
	}

	score := float64(e.CreatedAt.UTC().UnixNano())
	member := goredis.Z{Score: score, Member: e.Key}
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.allKey(), member)
	pipe.ZAdd(ctx, s.paperKey(e.PaperID), member)
	if e.FallbackKey != "" {
		pipe.ZAdd(ctx, s.fallbackKey(e.FallbackKey), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ragonometrics/redis: index cache entry: %w", err)
	}
	return nil
}

// GetCache retrieves the entry for a strict key.
func (s *Store) GetCache(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ragonometrics.ErrCacheMiss
		}
		return nil, fmt.Errorf("ragonometrics/redis: get cache: %w", err)
	}

	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("ragonometrics/redis: unmarshal cache entry: %w", err)
	}
	return &e, nil
}

// GetCacheByFallback retrieves the oldest entry carrying the given
// fallback key. The index is scored by creation time, so the first
// member is the stable winner.
func (s *Store) GetCacheByFallback(ctx context.Context, fallbackKey string) (*cache.Entry, error) {
	keys, err := s.client.ZRange(ctx, s.fallbackKey(fallbackKey), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/redis: fallback index: %w", err)
	}
	if len(keys) == 0 {
		return nil, ragonometrics.ErrCacheMiss
	}
	return s.GetCache(ctx, keys[0])
}

// ListCacheByPaper returns all entries for a paper, oldest first.
func (s *Store) ListCacheByPaper(ctx context.Context, paperID string) ([]*cache.Entry, error) {
	keys, err := s.client.ZRange(ctx, s.paperKey(paperID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ragonometrics/redis: paper index: %w", err)
	}

	entries := make([]*cache.Entry, 0, len(keys))
	for _, key := range keys {
		e, getErr := s.GetCache(ctx, key)
		if errors.Is(getErr, ragonometrics.ErrCacheMiss) {
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountCache returns the total number of cache entries.
func (s *Store) CountCache(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, s.allKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/redis: count cache: %w", err)
	}
	return count, nil
}

// PurgeCache removes entries created before the cutoff, along with their
// index memberships.
func (s *Store) PurgeCache(ctx context.Context, before time.Time) (int64, error) {
	maxScore := fmt.Sprintf("(%d", before.UTC().UnixNano())
	keys, err := s.client.ZRangeByScore(ctx, s.allKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("ragonometrics/redis: purge cache range: %w", err)
	}

	var purged int64
	for _, key := range keys {
		e, getErr := s.GetCache(ctx, key)
		if errors.Is(getErr, ragonometrics.ErrCacheMiss) {
			// Entry already gone; drop the dangling index member.
			s.client.ZRem(ctx, s.allKey(), key)
			continue
		}
		if getErr != nil {
			return purged, getErr
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.entryKey(key))
		pipe.ZRem(ctx, s.allKey(), key)
		pipe.ZRem(ctx, s.paperKey(e.PaperID), key)
		if e.FallbackKey != "" {
			pipe.ZRem(ctx, s.fallbackKey(e.FallbackKey), key)
		}
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return purged, fmt.Errorf("ragonometrics/redis: purge cache del: %w", pErr)
		}
		purged++
	}
	return purged, nil
}
