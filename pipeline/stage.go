package pipeline

import (
	"encoding/json"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

// Stage names one step of the fixed pipeline sequence.
type Stage string

// The fixed stage order. Econ, agentic, and index are optional: disabled or
// dependency-starved executions record a skip instead of failing the run.
const (
	StagePrep     Stage = "prep"
	StageIngest   Stage = "ingest"
	StageEnrich   Stage = "enrich"
	StageEcon     Stage = "econ"
	StageAgentic  Stage = "agentic"
	StageIndex    Stage = "index"
	StageEvaluate Stage = "evaluate"
	StageReport   Stage = "report"
)

// Order returns the stage execution sequence. Stage records within a run
// are totally ordered by this sequence.
func Order() []Stage {
	return []Stage{
		StagePrep, StageIngest, StageEnrich, StageEcon,
		StageAgentic, StageIndex, StageEvaluate, StageReport,
	}
}

// Optional reports whether a failure of this stage may be downgraded to a
// skip instead of failing the run.
func (s Stage) Optional() bool {
	return s == StageEcon || s == StageAgentic || s == StageIndex
}

// StageStatus represents the outcome of one stage within a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Machine-readable skip reasons.
const (
	SkipDisabled    = "disabled"
	SkipUnavailable = "dependency_unavailable"
)

// StageRecord is the durable outcome of one stage within one run. Exactly
// one record exists per (run, stage); it is created when the stage begins,
// updated once on completion, and immutable afterward.
type StageRecord struct {
	ragonometrics.Entity

	ID     id.StageID  `json:"id"`
	RunID  id.RunID    `json:"run_id"`
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`

	// Output is the stage's structured payload, canonical JSON.
	Output json.RawMessage `json:"output,omitempty"`

	// Error holds the stage-local error text for failed stages.
	Error string `json:"error,omitempty"`

	// SkipReason is set iff Status is skipped.
	SkipReason string `json:"skip_reason,omitempty"`

	// IdempotencyKey = hash(stage, config hash, input hash). Equal keys
	// across runs mean the stage would do identical work.
	IdempotencyKey string `json:"idempotency_key"`
	InputHash      string `json:"input_hash"`

	// ReuseSourceRunID points at the run whose completed record was
	// copied instead of recomputing. Nil for fresh computation.
	ReuseSourceRunID *id.RunID `json:"reuse_source_run_id,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
