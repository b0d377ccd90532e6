// Package janitor runs scheduled retention sweeps over terminal jobs,
// dead letter entries, and expired cache rows.
//
// The janitor is deliberately not part of the worker pool: purges are
// cheap, periodic, and must keep running even when no jobs flow. The
// schedule uses standard 5-field cron expressions or descriptors like
// "@every 1h" (github.com/robfig/cron/v3).
package janitor

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/job"
)

// Store is the subset of store operations the janitor sweeps.
type Store interface {
	job.Store
	dlq.Store
	cache.Store
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithSchedule sets the sweep schedule. Defaults to "@every 1h".
func WithSchedule(expr string) Option {
	return func(jn *Janitor) { jn.schedule = expr }
}

// WithCacheRetention sets a separate retention window for cached
// answers. Zero keeps cache entries forever: cached completions stay
// valid as long as their key matches, and recomputing them costs model
// calls.
func WithCacheRetention(d time.Duration) Option {
	return func(jn *Janitor) { jn.cacheRetention = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(jn *Janitor) { jn.logger = logger }
}

// Janitor purges terminal jobs and stale DLQ entries older than the
// retention window on a cron schedule.
type Janitor struct {
	store          Store
	retention      time.Duration
	cacheRetention time.Duration
	schedule       string
	logger         *slog.Logger

	cron    *cronlib.Cron
	entryID cronlib.EntryID
}

// New creates a Janitor sweeping entries older than retention.
func New(store Store, retention time.Duration, opts ...Option) *Janitor {
	jn := &Janitor{
		store:     store,
		retention: retention,
		schedule:  "@every 1h",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(jn)
	}
	return jn
}

// Start registers the sweep with the cron runner and starts it.
func (jn *Janitor) Start(_ context.Context) error {
	jn.cron = cronlib.New()
	entryID, err := jn.cron.AddFunc(jn.schedule, func() {
		jn.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	jn.entryID = entryID
	jn.cron.Start()

	jn.logger.Info("janitor started",
		slog.String("schedule", jn.schedule),
		slog.Duration("retention", jn.retention),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (jn *Janitor) Stop(ctx context.Context) error {
	if jn.cron == nil {
		return nil
	}
	stopCtx := jn.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	jn.logger.Info("janitor stopped")
	return nil
}

// Sweep purges everything past its retention window. It is safe to call
// directly, outside the schedule.
func (jn *Janitor) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(-jn.retention)

	jobs, err := jn.store.PurgeTerminalJobs(ctx, cutoff)
	if err != nil {
		jn.logger.Error("purge terminal jobs failed", slog.String("error", err.Error()))
	}

	entries, err := jn.store.PurgeDLQ(ctx, cutoff)
	if err != nil {
		jn.logger.Error("purge dlq failed", slog.String("error", err.Error()))
	}

	var answers int64
	if jn.cacheRetention > 0 {
		answers, err = jn.store.PurgeCache(ctx, now.Add(-jn.cacheRetention))
		if err != nil {
			jn.logger.Error("purge cache failed", slog.String("error", err.Error()))
		}
	}

	if jobs+entries+answers > 0 {
		jn.logger.Info("retention sweep",
			slog.Int64("jobs_purged", jobs),
			slog.Int64("dlq_purged", entries),
			slog.Int64("answers_purged", answers),
		)
	}
}
