package job

import (
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/lineage"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting to be claimed.
	StatusQueued Status = "queued"
	// StatusClaimed means a worker holds the lease but has not started.
	StatusClaimed Status = "claimed"
	// StatusRunning means the claiming worker is executing the handler.
	StatusRunning Status = "running"
	// StatusDone means the handler finished successfully.
	StatusDone Status = "done"
	// StatusFailed means the job exhausted its attempts and moved to the
	// dead letter queue.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one durable unit of work. Jobs survive process restarts; the
// claim fields say which worker holds the lease and until when.
type Job struct {
	ragonometrics.Entity

	ID      id.JobID `json:"id"`
	Name    string   `json:"name"`
	Queue   string   `json:"queue"`
	Payload []byte   `json:"payload"`
	Status  Status   `json:"status"`

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int `json:"priority"`

	// Attempts counts claims taken, including expired-lease retakes.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	LastError string `json:"last_error,omitempty"`

	// IdempotencyKey collapses duplicate enqueues: a second enqueue with
	// the same key while the first is not terminal returns the first job.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Claim state. Zero worker ID and nil expiry mean unclaimed.
	ClaimedBy      id.WorkerID `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`

	// Lineage carries the enqueue caller's run grouping labels so the
	// worker restores them before executing the handler.
	Lineage lineage.Labels `json:"lineage,omitempty"`

	// RunAt defers claiming until the given time. Zero means immediately.
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// LeaseExpired reports whether the job's lease has lapsed at now.
// Unclaimed jobs have no lease to expire.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.LeaseExpiresAt != nil && now.After(*j.LeaseExpiresAt)
}

// Claimable reports whether the job may be claimed at now: queued and due,
// or claimed/running with an expired lease.
func (j *Job) Claimable(now time.Time) bool {
	if !j.RunAt.IsZero() && j.RunAt.After(now) {
		return false
	}
	switch j.Status {
	case StatusQueued:
		return true
	case StatusClaimed, StatusRunning:
		return j.LeaseExpired(now)
	}
	return false
}
