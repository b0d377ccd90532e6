package pipeline

import (
	"context"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/id"
)

// Emitter receives run and stage lifecycle notifications.
// This interface is satisfied by hook.Registry directly (the method sets
// match by name) to break the import cycle between pipeline and hook.
type Emitter interface {
	EmitRunStarted(ctx context.Context, run *Run)
	EmitRunCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitRunFailed(ctx context.Context, run *Run, err error)

	EmitStageCompleted(ctx context.Context, rec *StageRecord)
	EmitStageSkipped(ctx context.Context, rec *StageRecord)
	EmitStageFailed(ctx context.Context, rec *StageRecord, err error)
	EmitStageReused(ctx context.Context, rec *StageRecord, source id.RunID)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) EmitRunStarted(context.Context, *Run)                   {}
func (NopEmitter) EmitRunCompleted(context.Context, *Run, time.Duration)  {}
func (NopEmitter) EmitRunFailed(context.Context, *Run, error)             {}
func (NopEmitter) EmitStageCompleted(context.Context, *StageRecord)       {}
func (NopEmitter) EmitStageSkipped(context.Context, *StageRecord)         {}
func (NopEmitter) EmitStageFailed(context.Context, *StageRecord, error)   {}
func (NopEmitter) EmitStageReused(context.Context, *StageRecord, id.RunID) {}
