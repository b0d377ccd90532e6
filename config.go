package ragonometrics

import "time"

// Config holds runtime settings for the worker side of the engine.
// Pipeline configuration (corpus, models, stage toggles) lives in the
// config package; this struct only governs execution mechanics.
type Config struct {
	// Concurrency is the number of concurrent claim loops.
	Concurrency int

	// Queues is the list of queues workers will claim from.
	Queues []string

	// PollInterval is how long a worker sleeps between empty claims.
	PollInterval time.Duration

	// Lease is the job ownership window. A claimed or running job whose
	// lease expires becomes claimable again (worker crash recovery).
	Lease time.Duration

	// HeartbeatInterval is how often active jobs extend their lease.
	HeartbeatInterval time.Duration

	// MaxAttempts is the per-job attempt budget before dead-lettering.
	MaxAttempts int

	// ShutdownTimeout bounds graceful worker shutdown.
	ShutdownTimeout time.Duration

	// Retention is how long terminal jobs and DLQ entries are kept
	// before the janitor may purge them.
	Retention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		Queues:            []string{"default"},
		PollInterval:      1 * time.Second,
		Lease:             30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		MaxAttempts:       3,
		ShutdownTimeout:   30 * time.Second,
		Retention:         7 * 24 * time.Hour,
	}
}
