package job

import (
	"context"
	"time"

	"github.com/badbayesian/ragonometrics-sub003/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
//
// ClaimJob and HeartbeatJob are the concurrency-critical operations: every
// backend must implement them as single atomic conditional updates so two
// workers can never hold the same job inside one lease window.
type Store interface {
	// EnqueueJob persists a new job in queued state. A duplicate ID
	// returns ErrJobAlreadyExists.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJob atomically claims the single oldest claimable job from the
	// given queues for workerID: eligible means queued and due, or
	// claimed/running past its lease expiry. The claim stamps the worker,
	// a lease of the given duration, and increments Attempts. Returns
	// ErrJobNotClaimable when nothing is eligible.
	ClaimJob(ctx context.Context, queues []string, workerID id.WorkerID, lease time.Duration) (*Job, error)

	// HeartbeatJob extends the lease of a job held by workerID. It fails
	// with ErrJobNotFound if the job is gone and ErrInvalidState if the
	// lease is held by someone else or already terminal — the worker must
	// then abandon the job without writing results.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// FindJobByIdempotencyKey returns the most recent non-terminal job
	// with the given key, or ErrJobNotFound. Used to collapse duplicate
	// enqueues of the same work.
	FindJobByIdempotencyKey(ctx context.Context, key string) (*Job, error)

	// ListJobsByStatus returns jobs matching the given status, oldest first.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeTerminalJobs deletes done and failed jobs older than the cutoff
	// and returns how many were removed. Retention sweeps call this.
	PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error)
}
