package dlq

import (
	"time"

	"github.com/badbayesian/ragonometrics-sub003/id"
)

// Entry represents a job that has exhausted its attempt budget and been
// moved to the dead letter queue for inspection or replay.
type Entry struct {
	ID             id.DLQID   `json:"id"`
	JobID          id.JobID   `json:"job_id"`
	JobName        string     `json:"job_name"`
	Queue          string     `json:"queue"`
	Payload        []byte     `json:"payload"`
	Error          string     `json:"error"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	FailedAt       time.Time  `json:"failed_at"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
