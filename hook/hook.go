// Package hook defines the observer system for ragonometrics.
// Observers are notified of lifecycle events (run started, stage
// completed, job failed, etc.) and can react to them — logging,
// metrics, audit trails, etc.
//
// Each lifecycle hook is a separate interface so observers opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Observer is the base interface all observers must implement.
type Observer interface {
	// Name returns a unique human-readable name for the observer.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a pipeline run begins executing.
type RunStarted interface {
	OnRunStarted(ctx context.Context, run *pipeline.Run) error
}

// RunCompleted is called after a pipeline run finishes successfully.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, run *pipeline.Run, elapsed time.Duration) error
}

// RunFailed is called when a pipeline run fails terminally.
type RunFailed interface {
	OnRunFailed(ctx context.Context, run *pipeline.Run, err error) error
}

// ──────────────────────────────────────────────────
// Stage lifecycle hooks
// ──────────────────────────────────────────────────

// StageCompleted is called after a stage completes with fresh output.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, rec *pipeline.StageRecord) error
}

// StageSkipped is called when a stage is skipped (disabled or its
// collaborator is unavailable).
type StageSkipped interface {
	OnStageSkipped(ctx context.Context, rec *pipeline.StageRecord) error
}

// StageFailed is called when a stage fails.
type StageFailed interface {
	OnStageFailed(ctx context.Context, rec *pipeline.StageRecord, err error) error
}

// StageReused is called when a stage's output is restored from an
// earlier run with the same stage key.
type StageReused interface {
	OnStageReused(ctx context.Context, rec *pipeline.StageRecord, source id.RunID) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
