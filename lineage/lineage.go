// Package lineage carries run grouping labels (workstream and variant arm)
// through context.Context, bridging between persisted Run fields and the
// contexts handed to stage code and workers.
package lineage

import "context"

type ctxKey struct{}

// Labels identify where a run sits in an experiment: a workstream groups
// related runs, a variant arm names one branch of a comparison.
type Labels struct {
	Workstream string
	VariantArm string
}

// Capture extracts lineage labels from the context.
// Returns zero labels if none are present.
func Capture(ctx context.Context) Labels {
	if l, ok := ctx.Value(ctxKey{}).(Labels); ok {
		return l
	}
	return Labels{}
}

// Restore attaches lineage labels to the context. If both labels are empty
// the context is returned unchanged.
func Restore(ctx context.Context, l Labels) context.Context {
	if l.Workstream == "" && l.VariantArm == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}
