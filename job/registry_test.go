package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/job"
)

type runPayload struct {
	RunID  string `json:"run_id"`
	Resume bool   `json:"resume"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got runPayload
	def := job.NewDefinition("run.execute", func(_ context.Context, p runPayload) error {
		got = p
		return nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get("run.execute")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(runPayload{RunID: "run_01h2x", Resume: true})
	if err := h(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "run_01h2x" {
		t.Errorf("RunID = %q, want %q", got.RunID, "run_01h2x")
	}
	if !got.Resume {
		t.Error("Resume = false, want true")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("expected no handler for unregistered job")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("job-a", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("job-b", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("job-c", func(_ context.Context, _ struct{}) error { return nil }))

	names := r.Names()
	sort.Strings(names)
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d", len(names))
	}
	expected := []string{"job-a", "job-b", "job-c"}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-job", func(_ context.Context, _ runPayload) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed-job")
	if err := h(context.Background(), []byte(`{invalid json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-payload", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("no-payload")
	if err := h(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.RegisterDefinition(r, job.NewDefinition("failing", func(_ context.Context, _ struct{}) error {
		return want
	}))

	h, _ := r.Get("failing")
	if err := h(context.Background(), nil); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestDefinition_Options(t *testing.T) {
	def := job.NewDefinition("run.execute", func(_ context.Context, _ runPayload) error { return nil },
		job.WithQueue("runs"),
		job.WithMaxAttempts(5),
		job.WithPriority(2),
		job.WithTimeout(time.Hour),
		job.WithIdempotencyKey("abc123"),
	)
	if def.Opts.Queue != "runs" {
		t.Errorf("Queue = %q, want %q", def.Opts.Queue, "runs")
	}
	if def.Opts.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", def.Opts.MaxAttempts)
	}
	if def.Opts.Priority != 2 {
		t.Errorf("Priority = %d, want 2", def.Opts.Priority)
	}
	if def.Opts.Timeout != time.Hour {
		t.Errorf("Timeout = %v, want 1h", def.Opts.Timeout)
	}
	if def.Opts.IdempotencyKey != "abc123" {
		t.Errorf("IdempotencyKey = %q, want %q", def.Opts.IdempotencyKey, "abc123")
	}
}

func TestJob_Claimable(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		j    job.Job
		want bool
	}{
		{"queued", job.Job{Status: job.StatusQueued}, true},
		{"queued deferred", job.Job{Status: job.StatusQueued, RunAt: future}, false},
		{"claimed live lease", job.Job{Status: job.StatusClaimed, LeaseExpiresAt: &future}, false},
		{"claimed expired lease", job.Job{Status: job.StatusClaimed, LeaseExpiresAt: &past}, true},
		{"running expired lease", job.Job{Status: job.StatusRunning, LeaseExpiresAt: &past}, true},
		{"done", job.Job{Status: job.StatusDone}, false},
		{"failed", job.Job{Status: job.StatusFailed}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.j.Claimable(now); got != tt.want {
				t.Errorf("Claimable() = %v, want %v", got, tt.want)
			}
		})
	}
}
