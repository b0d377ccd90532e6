package middleware

import (
	"context"
	"log/slog"

	"github.com/badbayesian/ragonometrics-sub003/job"
)

// Timeout bounds handler execution by the job's own Timeout field. Jobs
// without a timeout run under the caller's context unchanged. Deadline
// expiry surfaces as context.DeadlineExceeded from the handler, which
// the executor's retry policy classifies as transient.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		logger.Debug("enforcing job deadline",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", j.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()
		return next(ctx)
	}
}
