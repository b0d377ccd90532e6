package middleware

import (
	"context"

	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/lineage"
)

// Lineage returns middleware that restores run grouping labels from the
// job's Lineage field into the context. This ensures handlers see the
// same workstream and variant arm as the original enqueue caller.
func Lineage() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = lineage.Restore(ctx, j.Lineage)
		return next(ctx)
	}
}
