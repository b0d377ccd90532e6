package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/hook"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/job"
)

// QueueManager controls per-queue and per-workstream rate limiting and
// concurrency. The worker pool calls Acquire before executing a claimed
// job and Release after execution completes.
type QueueManager interface {
	// Acquire checks rate limits and concurrency for the queue/workstream
	// combination. Returns true if the job is allowed to proceed.
	Acquire(queue, workstream string) bool
	// Release decrements the active count for the queue/workstream pair.
	Release(queue, workstream string)
}

// Pool manages a set of concurrent worker goroutines that claim jobs
// under leases and execute them through the Executor. Stale claims are
// not reaped by the pool: an expired lease makes the job claimable again,
// so recovery happens naturally at the next claim.
type Pool struct {
	store        job.Store
	executor     *Executor
	hooks        *hook.Registry
	concurrency  int
	queues       []string
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Lease / heartbeat configuration.
	leaseDuration     time.Duration
	heartbeatInterval time.Duration

	// Queue manager (optional).
	queueManager QueueManager

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool will poll.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often workers poll for claimable jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLeaseDuration sets the claim lease length. Jobs whose lease lapses
// without a heartbeat become claimable by other workers.
func WithLeaseDuration(d time.Duration) PoolOption {
	return func(p *Pool) { p.leaseDuration = d }
}

// WithHeartbeatInterval sets how often the pool extends leases for
// active jobs. A zero value disables heartbeats, in which case the
// lease must outlast the slowest handler.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:         store,
		executor:      executor,
		hooks:         hooks,
		concurrency:   10,
		queues:        []string{"default"},
		pollInterval:  time.Second,
		leaseDuration: time.Minute,
		workerID:      id.NewWorkerID(),
		logger:        logger,
		stopCh:        make(chan struct{}),
		activeJobs:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for n := 0; n < p.concurrency; n++ {
		p.wg.Add(1)
		go p.claimLoop()
	}

	// Launch heartbeat goroutine if configured.
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	// Signal all workers to stop.
	close(p.stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	p.hooks.EmitShutdown(context.Background())
	return nil
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		j, err := p.store.ClaimJob(context.Background(), p.queues, p.workerID, p.leaseDuration)
		if err != nil {
			if !errors.Is(err, ragonometrics.ErrJobNotClaimable) {
				p.logger.Error("claim error", slog.String("error", err.Error()))
			}
			p.sleep()
			continue
		}

		// Check queue/workstream rate limit and concurrency.
		if p.queueManager != nil && !p.queueManager.Acquire(j.Queue, j.Lineage.Workstream) {
			// Rate limited: release the claim with a small delay. The
			// claim incremented Attempts, but the job never ran, so the
			// increment is rolled back to keep the retry budget intact.
			j.Status = job.StatusQueued
			j.RunAt = time.Now().UTC().Add(p.pollInterval)
			j.ClaimedBy = id.WorkerID{}
			j.LeaseExpiresAt = nil
			if j.Attempts > 0 {
				j.Attempts--
			}
			if updateErr := p.store.UpdateJob(context.Background(), j); updateErr != nil {
				p.logger.Error("failed to release rate-limited job",
					slog.String("job_id", j.ID.String()),
					slog.String("error", updateErr.Error()),
				)
			}
			p.sleep()
			continue
		}

		p.hooks.EmitJobStarted(context.Background(), j)

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(j.ID.String(), cancel)

		execErr := p.executor.Execute(ctx, j)
		if execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(j.ID.String())
		cancel()

		// Release the queue/workstream slot.
		if p.queueManager != nil {
			p.queueManager.Release(j.Queue, j.Lineage.Workstream)
		}
	}
}

// heartbeatLoop periodically extends leases for all active jobs.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	for _, jobIDStr := range jobIDs {
		parsedID, parseErr := id.ParseJobID(jobIDStr)
		if parseErr != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", jobIDStr))
			continue
		}
		if err := p.store.HeartbeatJob(context.Background(), parsedID, p.workerID, p.leaseDuration); err != nil {
			// A lost lease means another worker may already hold the job.
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
