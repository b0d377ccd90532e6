package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/store/memory"
)

func failedJob(name, queue string) *job.Job {
	return &job.Job{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewJobID(),
		Name:           name,
		Queue:          queue,
		Payload:        []byte(`{"run_id":"run_x"}`),
		Status:         job.StatusFailed,
		Attempts:       3,
		MaxAttempts:    3,
		IdempotencyKey: "execute-run:abc",
	}
}

func TestServicePushCapturesJob(t *testing.T) {
	t.Parallel()
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j := failedJob("execute-run", "runs")
	if err := svc.Push(ctx, j, errors.New("completer unavailable")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.JobID.String() != j.ID.String() {
		t.Errorf("JobID = %s, want %s", e.JobID, j.ID)
	}
	if e.JobName != "execute-run" || e.Queue != "runs" {
		t.Errorf("entry lost job identity: %+v", e)
	}
	if e.Error != "completer unavailable" {
		t.Errorf("Error = %q", e.Error)
	}
	if e.Attempts != 3 || e.MaxAttempts != 3 {
		t.Errorf("attempt counters = %d/%d, want 3/3", e.Attempts, e.MaxAttempts)
	}
	if e.IdempotencyKey != "execute-run:abc" {
		t.Errorf("IdempotencyKey = %q", e.IdempotencyKey)
	}
	if e.FailedAt.IsZero() {
		t.Error("FailedAt not stamped")
	}
}

func TestServiceReplayEnqueuesFreshJob(t *testing.T) {
	t.Parallel()
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	orig := failedJob("execute-run", "runs")
	if err := svc.Push(ctx, orig, errors.New("boom")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, _ := s.ListDLQ(ctx, dlq.ListOpts{})
	entry := entries[0]

	replayed, err := svc.Replay(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID.String() == orig.ID.String() {
		t.Error("replay must mint a fresh job ID")
	}
	if replayed.Status != job.StatusQueued {
		t.Errorf("Status = %q, want queued", replayed.Status)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if replayed.Name != orig.Name || replayed.Queue != orig.Queue {
		t.Errorf("replayed job lost identity: %+v", replayed)
	}
	if string(replayed.Payload) != string(orig.Payload) {
		t.Error("replayed job lost its payload")
	}
	if replayed.IdempotencyKey != orig.IdempotencyKey {
		t.Errorf("IdempotencyKey = %q, want %q", replayed.IdempotencyKey, orig.IdempotencyKey)
	}

	// The new job must be claimable right away.
	worker := id.NewWorkerID()
	claimed, err := s.ClaimJob(ctx, []string{"runs"}, worker, time.Minute)
	if err != nil {
		t.Fatalf("ClaimJob after replay: %v", err)
	}
	if claimed.ID.String() != replayed.ID.String() {
		t.Errorf("claimed %s, want the replayed job %s", claimed.ID, replayed.ID)
	}

	// The entry is marked so operators can see it was handled.
	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set after replay")
	}
}

func TestServiceReplayUnknownEntry(t *testing.T) {
	t.Parallel()
	s := memory.New()
	svc := dlq.NewService(s, s)

	if _, err := svc.Replay(context.Background(), id.NewDLQID()); !errors.Is(err, ragonometrics.ErrDLQNotFound) {
		t.Fatalf("Replay unknown: got %v, want ErrDLQNotFound", err)
	}
}

func TestServiceDLQStoreExposesList(t *testing.T) {
	t.Parallel()
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	for _, queue := range []string{"runs", "runs", "maintenance"} {
		if err := svc.Push(ctx, failedJob("execute-run", queue), errors.New("boom")); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	entries, err := svc.DLQStore().ListDLQ(ctx, dlq.ListOpts{Queue: "runs"})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d runs entries, want 2", len(entries))
	}

	count, err := svc.DLQStore().CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Fatalf("CountDLQ = %d, want 3", count)
	}
}
