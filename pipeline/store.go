package pipeline

import (
	"context"

	"github.com/badbayesian/ragonometrics-sub003/id"
)

// ListOpts controls filtering for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Status filters by run status. Empty means all statuses.
	Status RunStatus
	// Workstream filters by lineage workstream. Empty means all.
	Workstream string
	// CorpusFingerprint filters by input fingerprint. Empty means all.
	CorpusFingerprint string
	// ConfigHash filters by configuration hash. Empty means all.
	ConfigHash string
}

// Store defines the persistence contract for runs and stage records.
type Store interface {
	// CreateRun persists a new run in pending state.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the given options, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// CreateStage persists a new stage record. The (run, stage) pair is
	// unique; a second create returns ErrStageAlreadyExists.
	CreateStage(ctx context.Context, rec *StageRecord) error

	// UpdateStage persists the single terminal update of a stage record.
	UpdateStage(ctx context.Context, rec *StageRecord) error

	// GetStage retrieves the record for one stage of a run.
	GetStage(ctx context.Context, runID id.RunID, stage Stage) (*StageRecord, error)

	// ListStages returns all stage records of a run in pipeline order.
	ListStages(ctx context.Context, runID id.RunID) ([]*StageRecord, error)

	// FindReusableStage returns a completed stage record with the given
	// idempotency key from any run other than exclude, or
	// ErrStageNotFound. When several qualify, the oldest wins so reuse
	// chains always point at the original computation.
	FindReusableStage(ctx context.Context, idempotencyKey string, exclude id.RunID) (*StageRecord, error)
}
