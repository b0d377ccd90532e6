package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/hook"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// ──────────────────────────────────────────────────
// Test observers
// ──────────────────────────────────────────────────

// allHooksObs implements every lifecycle hook for testing.
type allHooksObs struct {
	calls []string
}

func (o *allHooksObs) Name() string { return "all-hooks" }

func (o *allHooksObs) OnRunStarted(_ context.Context, _ *pipeline.Run) error {
	o.calls = append(o.calls, "OnRunStarted")
	return nil
}

func (o *allHooksObs) OnRunCompleted(_ context.Context, _ *pipeline.Run, _ time.Duration) error {
	o.calls = append(o.calls, "OnRunCompleted")
	return nil
}

func (o *allHooksObs) OnRunFailed(_ context.Context, _ *pipeline.Run, _ error) error {
	o.calls = append(o.calls, "OnRunFailed")
	return nil
}

func (o *allHooksObs) OnStageCompleted(_ context.Context, _ *pipeline.StageRecord) error {
	o.calls = append(o.calls, "OnStageCompleted")
	return nil
}

func (o *allHooksObs) OnStageSkipped(_ context.Context, _ *pipeline.StageRecord) error {
	o.calls = append(o.calls, "OnStageSkipped")
	return nil
}

func (o *allHooksObs) OnStageFailed(_ context.Context, _ *pipeline.StageRecord, _ error) error {
	o.calls = append(o.calls, "OnStageFailed")
	return nil
}

func (o *allHooksObs) OnStageReused(_ context.Context, _ *pipeline.StageRecord, _ id.RunID) error {
	o.calls = append(o.calls, "OnStageReused")
	return nil
}

func (o *allHooksObs) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	o.calls = append(o.calls, "OnJobEnqueued")
	return nil
}

func (o *allHooksObs) OnJobStarted(_ context.Context, _ *job.Job) error {
	o.calls = append(o.calls, "OnJobStarted")
	return nil
}

func (o *allHooksObs) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	o.calls = append(o.calls, "OnJobCompleted")
	return nil
}

func (o *allHooksObs) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	o.calls = append(o.calls, "OnJobFailed")
	return nil
}

func (o *allHooksObs) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	o.calls = append(o.calls, "OnJobRetrying")
	return nil
}

func (o *allHooksObs) OnJobDLQ(_ context.Context, _ *job.Job, _ error) error {
	o.calls = append(o.calls, "OnJobDLQ")
	return nil
}

func (o *allHooksObs) OnShutdown(_ context.Context) error {
	o.calls = append(o.calls, "OnShutdown")
	return nil
}

// runOnlyObs only implements run-related hooks.
type runOnlyObs struct {
	calls []string
}

func (o *runOnlyObs) Name() string { return "run-only" }

func (o *runOnlyObs) OnRunStarted(_ context.Context, _ *pipeline.Run) error {
	o.calls = append(o.calls, "OnRunStarted")
	return nil
}

func (o *runOnlyObs) OnRunCompleted(_ context.Context, _ *pipeline.Run, _ time.Duration) error {
	o.calls = append(o.calls, "OnRunCompleted")
	return nil
}

// failingObs returns errors from hooks.
type failingObs struct{}

func (o *failingObs) Name() string { return "failing" }

func (o *failingObs) OnRunStarted(_ context.Context, _ *pipeline.Run) error {
	return errors.New("boom")
}

func (o *failingObs) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksObs{}
	r.Register(all)

	if got := len(r.Observers()); got != 1 {
		t.Fatalf("expected 1 observer, got %d", got)
	}
	if got := r.Observers()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksObs{}
	ro := &runOnlyObs{}
	r.Register(all)
	r.Register(ro)

	ctx := context.Background()
	run := &pipeline.Run{}

	// Both implement OnRunStarted → both called.
	r.EmitRunStarted(ctx, run)
	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted], got %v", all.calls)
	}
	if len(ro.calls) != 1 || ro.calls[0] != "OnRunStarted" {
		t.Fatalf("ro: expected [OnRunStarted], got %v", ro.calls)
	}

	// Only all implements OnRunFailed → ro not called.
	r.EmitRunFailed(ctx, run, errors.New("fail"))
	if len(all.calls) != 2 || all.calls[1] != "OnRunFailed" {
		t.Fatalf("all: expected OnRunFailed as 2nd, got %v", all.calls)
	}
	if len(ro.calls) != 1 {
		t.Fatalf("ro: should still have 1 call, got %v", ro.calls)
	}
}

func TestRegistry_AllRunAndStageHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksObs{}
	r.Register(all)

	ctx := context.Background()
	run := &pipeline.Run{}
	rec := &pipeline.StageRecord{Stage: pipeline.StageIngest}

	r.EmitRunStarted(ctx, run)
	r.EmitStageCompleted(ctx, rec)
	r.EmitStageSkipped(ctx, rec)
	r.EmitStageFailed(ctx, rec, errors.New("stage fail"))
	r.EmitStageReused(ctx, rec, id.NewRunID())
	r.EmitRunCompleted(ctx, run, 2*time.Second)
	r.EmitRunFailed(ctx, run, errors.New("run fail"))

	expected := []string{
		"OnRunStarted", "OnStageCompleted", "OnStageSkipped",
		"OnStageFailed", "OnStageReused", "OnRunCompleted", "OnRunFailed",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_AllJobHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksObs{}
	r.Register(all)

	ctx := context.Background()
	j := &job.Job{Name: "test-job"}

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("fail"))
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobDLQ(ctx, j, errors.New("dlq"))

	expected := []string{
		"OnJobEnqueued", "OnJobStarted", "OnJobCompleted",
		"OnJobFailed", "OnJobRetrying", "OnJobDLQ",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(&failingObs{})
	r.Register(&runOnlyObs{})

	ctx := context.Background()

	// Emitters must not panic or stop on hook errors; later observers
	// still run.
	ro := r.Observers()[1].(*runOnlyObs)
	r.EmitRunStarted(ctx, &pipeline.Run{})
	if len(ro.calls) != 1 {
		t.Fatalf("run-only observer not notified after failing hook: %v", ro.calls)
	}
	r.EmitShutdown(ctx)
}
