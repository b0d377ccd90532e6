package pipeline

import (
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	// RunPending means the run is created but not yet executing.
	RunPending RunStatus = "pending"
	// RunRunning means the stage sequence is currently executing.
	RunRunning RunStatus = "running"
	// RunCompleted means no required stage failed.
	RunCompleted RunStatus = "completed"
	// RunFailed means a required stage failed, or the run was cancelled.
	RunFailed RunStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one execution of the staged pipeline for a given input corpus and
// configuration. The configuration hash and snapshot are fixed at creation
// and never mutated; runs are never deleted by the core.
type Run struct {
	ragonometrics.Entity

	ID     id.RunID  `json:"id"`
	Status RunStatus `json:"status"`

	// CorpusFingerprint is set by the prep stage once the input set has
	// been listed and hashed.
	CorpusFingerprint string `json:"corpus_fingerprint,omitempty"`

	ConfigHash     string `json:"config_hash"`
	ConfigSnapshot []byte `json:"config_snapshot"`

	// Lineage.
	Workstream  string    `json:"workstream,omitempty"`
	VariantArm  string    `json:"variant_arm,omitempty"`
	ParentRunID *id.RunID `json:"parent_run_id,omitempty"`

	// Error carries the first fatal stage's classified error text.
	Error string `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
