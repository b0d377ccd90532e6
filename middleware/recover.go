package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/badbayesian/ragonometrics-sub003/job"
)

// Recover converts a handler panic into an ordinary error so one bad
// stage payload cannot take down the whole worker pool. The stack is
// logged at error level.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("recovered panic while executing job",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.Any("value", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}()
		return next(ctx)
	}
}
