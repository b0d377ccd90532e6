// Package worker provides the job execution engine — an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines claiming jobs under leases.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/backoff"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/hook"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/middleware"
)

// Executor runs a single claimed job through middleware and the registered
// handler, then handles retry logic, DLQ push, status updates, and
// lifecycle events.
type Executor struct {
	registry   *job.Registry
	hooks      *hook.Registry
	store      job.Store
	dlqService *dlq.Service
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	hooks *hook.Registry,
	store job.Store,
	dlqService *dlq.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		hooks:      hooks,
		store:      store,
		dlqService: dlqService,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a claimed job through the middleware chain and handler.
// On success: marks done, emits JobCompleted.
// On failure with attempts remaining: re-queues with backoff, emits JobRetrying.
// On failure with attempts exhausted: marks failed, pushes to DLQ,
// emits JobFailed + JobDLQ.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Name)
	if !ok {
		return fmt.Errorf("no handler registered for job %q", j.Name)
	}

	start := time.Now().UTC()
	j.Status = job.StatusRunning
	j.StartedAt = &start
	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		return updateErr
	}

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	}

	// Run through middleware chain.
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.Touch()

	if err != nil {
		return e.handleFailure(ctx, j, err, now)
	}

	return e.handleSuccess(ctx, j, now, elapsed)
}

// handleSuccess marks the job as done and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.Status = job.StatusDone
	j.FinishedAt = &now
	j.LeaseExpiresAt = nil

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure records the error and either re-queues or sends to DLQ.
// Attempts was already incremented at claim time.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.LastError = handlerErr.Error()

	if j.Attempts < j.MaxAttempts {
		return e.scheduleRetry(ctx, j, now)
	}

	return e.sendToDLQ(ctx, j, handlerErr, now)
}

// scheduleRetry returns the job to the queue with a backoff delay and a
// cleared claim, so any worker may take the next attempt.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, now time.Time) error {
	delay := e.backoff.Delay(j.Attempts)
	nextRunAt := now.Add(delay)
	j.Status = job.StatusQueued
	j.RunAt = nextRunAt
	j.ClaimedBy = id.WorkerID{}
	j.LeaseExpiresAt = nil
	j.StartedAt = nil

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Name, j.Attempts, j.MaxAttempts, fmt.Errorf("%s", j.LastError))
}

// sendToDLQ marks the job as failed, pushes it to the DLQ, and emits events.
func (e *Executor) sendToDLQ(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.Status = job.StatusFailed
	j.FinishedAt = &now
	j.LeaseExpiresAt = nil

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, j, handlerErr); dlqErr != nil {
			e.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.hooks.EmitJobFailed(ctx, j, handlerErr)
	e.hooks.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job moved to DLQ after exhausting attempts",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.Attempts),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
