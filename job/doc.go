// Package job defines the durable work queue: the job model, the claim
// contract workers dequeue through, and the registry mapping job names to
// typed handlers.
//
// Claiming is at-most-once per lease: a claim is a single conditional
// store update that binds the oldest eligible job to one worker and stamps
// a lease expiry. While the lease holds, no other worker can claim the
// job; once it expires without a heartbeat, the job becomes claimable
// again and the attempt counter reflects the abandoned try.
//
// Handlers must be idempotent. A worker crash after the side effect but
// before the terminal update means the job runs again on another worker.
package job
