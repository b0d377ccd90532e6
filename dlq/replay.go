package dlq

import (
	"context"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
)

// Replay re-enqueues a DLQ entry as a new queued job and marks the entry
// as replayed. The new job gets a fresh ID, a zero attempt counter, and
// runs immediately.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewJobID(),
		Name:           entry.JobName,
		Queue:          entry.Queue,
		Payload:        entry.Payload,
		Status:         job.StatusQueued,
		MaxAttempts:    entry.MaxAttempts,
		IdempotencyKey: entry.IdempotencyKey,
		RunAt:          time.Now().UTC(),
	}

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued. Surface the marking error but
		// hand the job back.
		return j, err
	}

	return j, nil
}
