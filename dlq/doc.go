// Package dlq provides the dead letter queue for jobs that have exhausted
// their attempt budget. It supports inspection, replay, and purging.
//
// When a claim would push a job past MaxAttempts, the executor marks the
// job failed and calls [Service.Push] to move it here. The original
// payload, final error, and attempt counts are preserved for debugging.
//
// Replaying an entry re-enqueues the original payload as a fresh job with
// a zero attempt counter and stamps ReplayedAt on the entry. The job's
// idempotency key is carried over, so a replay of work that was since
// re-enqueued by other means still collapses into one job.
package dlq
