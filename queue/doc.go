// Package queue defines the queue abstraction with priority ordering
// and per-queue / per-workstream rate limiting.
//
// Queues are named channels that group related jobs. Jobs carry a Queue
// field that determines which queue they belong to. The worker pool polls
// the queues it is configured with (default: ["default"]).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "agentic",
//	    MaxConcurrency: 4,      // max 4 concurrent agentic jobs
//	    RateLimit:      2,      // max 2 jobs/s dequeued from this queue
//	    RateBurst:      4,      // allow bursts up to 4
//	}
//
// # Manager
//
// [Manager] enforces per-queue and per-workstream limits at claim time.
// It uses a token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits. Workstream limits keep one
// large experiment sweep from starving the rest of the shared model
// budget.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName, workstream) {
//	    defer m.Release(queueName, workstream)
//	    // process the job
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide concurrency.
package queue
