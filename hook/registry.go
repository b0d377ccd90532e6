package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Named entry types pair a hook implementation with the observer name
// captured at registration time. This avoids type-asserting back to
// Observer inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageSkippedEntry struct {
	name string
	hook StageSkipped
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type stageReusedEntry struct {
	name string
	hook StageReused
}

type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered observers and dispatches lifecycle events
// to them. It type-caches observers at registration time so emit calls
// iterate only over observers that implement the relevant hook.
type Registry struct {
	observers []Observer
	logger    *slog.Logger

	// Type-cached slices for each lifecycle hook.
	runStarted     []runStartedEntry
	runCompleted   []runCompletedEntry
	runFailed      []runFailedEntry
	stageCompleted []stageCompletedEntry
	stageSkipped   []stageSkippedEntry
	stageFailed    []stageFailedEntry
	stageReused    []stageReusedEntry
	jobEnqueued    []jobEnqueuedEntry
	jobStarted     []jobStartedEntry
	jobCompleted   []jobCompletedEntry
	jobFailed      []jobFailedEntry
	jobRetrying    []jobRetryingEntry
	jobDLQ         []jobDLQEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an observer registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

var _ pipeline.Emitter = (*Registry)(nil)

// Register adds an observer and type-asserts it into all applicable
// hook caches. Observers are notified in registration order.
func (r *Registry) Register(o Observer) {
	r.observers = append(r.observers, o)
	name := o.Name()

	if h, ok := o.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := o.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := o.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := o.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := o.(StageSkipped); ok {
		r.stageSkipped = append(r.stageSkipped, stageSkippedEntry{name, h})
	}
	if h, ok := o.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := o.(StageReused); ok {
		r.stageReused = append(r.stageReused, stageReusedEntry{name, h})
	}
	if h, ok := o.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := o.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := o.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := o.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := o.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := o.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, h})
	}
	if h, ok := o.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Observers returns all registered observers.
func (r *Registry) Observers() []Observer { return r.observers }

// ──────────────────────────────────────────────────
// Run event emitters
// ──────────────────────────────────────────────────

// EmitRunStarted notifies all observers that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, run *pipeline.Run) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, run); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all observers that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, run *pipeline.Run, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all observers that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, run *pipeline.Run, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Stage event emitters
// ──────────────────────────────────────────────────

// EmitStageCompleted notifies all observers that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, rec *pipeline.StageRecord) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, rec); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageSkipped notifies all observers that implement StageSkipped.
func (r *Registry) EmitStageSkipped(ctx context.Context, rec *pipeline.StageRecord) {
	for _, e := range r.stageSkipped {
		if err := e.hook.OnStageSkipped(ctx, rec); err != nil {
			r.logHookError("OnStageSkipped", e.name, err)
		}
	}
}

// EmitStageFailed notifies all observers that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, rec *pipeline.StageRecord, stageErr error) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, rec, stageErr); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitStageReused notifies all observers that implement StageReused.
func (r *Registry) EmitStageReused(ctx context.Context, rec *pipeline.StageRecord, source id.RunID) {
	for _, e := range r.stageReused {
		if err := e.hook.OnStageReused(ctx, rec, source); err != nil {
			r.logHookError("OnStageReused", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all observers that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all observers that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all observers that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all observers that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all observers that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all observers that implement JobDLQ.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDLQ", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all observers that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, observer string, err error) {
	r.logger.Warn("observer hook error",
		slog.String("hook", hook),
		slog.String("observer", observer),
		slog.String("error", err.Error()),
	)
}
