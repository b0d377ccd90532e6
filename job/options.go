package job

import "time"

// Options configures per-job behavior such as attempts, queue, and priority.
type Options struct {
	// MaxAttempts is the total attempt budget before the job moves to the
	// dead letter queue.
	MaxAttempts int

	// Queue is the queue name this job should be enqueued to.
	Queue string

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// Timeout is the maximum duration a handler may run before its context
	// is cancelled.
	Timeout time.Duration

	// RunAt schedules the job for future execution. Zero means immediate.
	RunAt time.Time

	// IdempotencyKey collapses duplicate enqueues of identical work.
	IdempotencyKey string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Queue:       "default",
		Timeout:     30 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the total attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

// WithIdempotencyKey sets the duplicate-enqueue collapse key.
func WithIdempotencyKey(key string) Option {
	return func(o *Options) { o.IdempotencyKey = key }
}
