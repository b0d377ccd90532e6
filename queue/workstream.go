package queue

import (
	"fmt"

	"golang.org/x/time/rate"
)

// WorkstreamConfig defines rate limits and concurrency for a specific
// workstream on a specific queue, identified by the job's lineage
// workstream label.
type WorkstreamConfig struct {
	// QueueName is the queue this config applies to.
	QueueName string

	// Workstream is the experiment workstream (job.Lineage.Workstream).
	Workstream string

	// RateLimit is the sustained jobs per second for this workstream.
	RateLimit float64

	// RateBurst is the burst size for the workstream's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this workstream on
	// this queue. Zero means no workstream-specific concurrency limit.
	MaxConcurrency int
}

// workstreamState tracks runtime state for a single queue+workstream pair.
type workstreamState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// workstreamKey builds the map key for a queue+workstream pair.
func workstreamKey(queue, workstream string) string {
	return fmt.Sprintf("%s:%s", queue, workstream)
}

// SetWorkstreamConfig configures rate limits and concurrency for a
// specific workstream on a specific queue. Calling this multiple times
// for the same queue+workstream replaces the previous configuration.
func (m *Manager) SetWorkstreamConfig(cfg WorkstreamConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workstreamKey(cfg.QueueName, cfg.Workstream)
	existing := m.workstreams[key]

	ws := &workstreamState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ws.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ws.active = existing.active
	}
	m.workstreams[key] = ws
}

// WorkstreamActiveCount returns the current number of active jobs for a
// queue+workstream pair.
func (m *Manager) WorkstreamActiveCount(queue, workstream string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.workstreams[workstreamKey(queue, workstream)]; ws != nil {
		return ws.active
	}
	return 0
}
