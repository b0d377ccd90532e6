package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ pipeline.Store = (*Store)(nil)
	_ job.Store      = (*Store)(nil)
	_ cache.Store    = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
	_ index.Store    = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs     map[string]*pipeline.Run
	stages   map[string]*pipeline.StageRecord // key: "runID:stage"
	jobs     map[string]*job.Job
	caches   map[string]*cache.Entry // key: strict cache key
	dlqs     map[string]*dlq.Entry
	versions map[string]*index.Version
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:     make(map[string]*pipeline.Run),
		stages:   make(map[string]*pipeline.StageRecord),
		jobs:     make(map[string]*job.Job),
		caches:   make(map[string]*cache.Entry),
		dlqs:     make(map[string]*dlq.Entry),
		versions: make(map[string]*index.Version),
	}
}

func stageKey(runID id.RunID, stage pipeline.Stage) string {
	return runID.String() + ":" + string(stage)
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Pipeline Store
// ──────────────────────────────────────────────────

// CreateRun persists a new run.
func (m *Store) CreateRun(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return ragonometrics.ErrRunAlreadyExists
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*pipeline.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, ragonometrics.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRun persists changes to an existing run.
func (m *Store) UpdateRun(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return ragonometrics.ErrRunNotFound
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (m *Store) ListRuns(_ context.Context, opts pipeline.ListOpts) ([]*pipeline.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*pipeline.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.Workstream != "" && r.Workstream != opts.Workstream {
			continue
		}
		if opts.CorpusFingerprint != "" && r.CorpusFingerprint != opts.CorpusFingerprint {
			continue
		}
		if opts.ConfigHash != "" && r.ConfigHash != opts.ConfigHash {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CreateStage persists a new stage record. The (run, stage) pair is unique.
func (m *Store) CreateStage(_ context.Context, rec *pipeline.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stageKey(rec.RunID, rec.Stage)
	if _, exists := m.stages[key]; exists {
		return ragonometrics.ErrStageAlreadyExists
	}
	cp := *rec
	m.stages[key] = &cp
	return nil
}

// UpdateStage persists the terminal update of a stage record.
func (m *Store) UpdateStage(_ context.Context, rec *pipeline.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stageKey(rec.RunID, rec.Stage)
	if _, ok := m.stages[key]; !ok {
		return ragonometrics.ErrStageNotFound
	}
	cp := *rec
	m.stages[key] = &cp
	return nil
}

// GetStage retrieves the record for one stage of a run.
func (m *Store) GetStage(_ context.Context, runID id.RunID, stage pipeline.Stage) (*pipeline.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.stages[stageKey(runID, stage)]
	if !ok {
		return nil, ragonometrics.ErrStageNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListStages returns all stage records of a run in pipeline order.
func (m *Store) ListStages(_ context.Context, runID id.RunID) ([]*pipeline.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	order := make(map[pipeline.Stage]int, 8)
	for i, s := range pipeline.Order() {
		order[s] = i
	}

	recs := make([]*pipeline.StageRecord, 0, 8)
	for key, rec := range m.stages {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool {
		return order[recs[i].Stage] < order[recs[j].Stage]
	})
	return recs, nil
}

// FindReusableStage returns the oldest completed record with the given
// idempotency key from any run other than exclude.
func (m *Store) FindReusableStage(_ context.Context, idempotencyKey string, exclude id.RunID) (*pipeline.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *pipeline.StageRecord
	for _, rec := range m.stages {
		if rec.Status != pipeline.StageCompleted {
			continue
		}
		if rec.IdempotencyKey != idempotencyKey {
			continue
		}
		if rec.RunID.String() == exclude.String() {
			continue
		}
		if best == nil || rec.CreatedAt.Before(best.CreatedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, ragonometrics.ErrStageNotFound
	}
	cp := *best
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in queued state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return ragonometrics.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// ClaimJob atomically claims the single oldest claimable job.
func (m *Store) ClaimJob(_ context.Context, queues []string, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	var best *job.Job
	for _, j := range m.jobs {
		if !j.Claimable(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		if best == nil {
			best = j
			continue
		}
		if j.Priority != best.Priority {
			if j.Priority > best.Priority {
				best = j
			}
			continue
		}
		if j.CreatedAt.Before(best.CreatedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, ragonometrics.ErrJobNotClaimable
	}

	expiry := now.Add(lease)
	best.Status = job.StatusClaimed
	best.ClaimedBy = workerID
	best.LeaseExpiresAt = &expiry
	best.Attempts++
	hb := now
	best.HeartbeatAt = &hb
	best.Touch()

	cp := *best
	return &cp, nil
}

// HeartbeatJob extends the lease of a job held by workerID.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return ragonometrics.ErrJobNotFound
	}
	if j.Status.Terminal() || j.ClaimedBy.String() != workerID.String() {
		return ragonometrics.ErrInvalidState
	}
	now := time.Now().UTC()
	expiry := now.Add(lease)
	j.LeaseExpiresAt = &expiry
	j.HeartbeatAt = &now
	j.Touch()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, ragonometrics.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return ragonometrics.ErrJobNotFound
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return ragonometrics.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// FindJobByIdempotencyKey returns the most recent non-terminal job with
// the given key.
func (m *Store) FindJobByIdempotencyKey(_ context.Context, key string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *job.Job
	for _, j := range m.jobs {
		if j.IdempotencyKey != key || j.Status.Terminal() {
			continue
		}
		if best == nil || j.CreatedAt.After(best.CreatedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, ragonometrics.ErrJobNotFound
	}
	cp := *best
	return &cp, nil
}

// ListJobsByStatus returns jobs matching the given status, oldest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		n++
	}
	return n, nil
}

// PurgeTerminalJobs deletes done and failed jobs finished before cutoff.
func (m *Store) PurgeTerminalJobs(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, j := range m.jobs {
		if !j.Status.Terminal() {
			continue
		}
		finished := j.CreatedAt
		if j.FinishedAt != nil {
			finished = *j.FinishedAt
		}
		if finished.Before(cutoff) {
			delete(m.jobs, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Cache Store
// ──────────────────────────────────────────────────

// PutCache inserts an entry keyed by its strict key, insert-or-ignore.
func (m *Store) PutCache(_ context.Context, e *cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[e.Key]; exists {
		return ragonometrics.ErrCacheExists
	}
	cp := *e
	m.caches[e.Key] = &cp
	return nil
}

// GetCache retrieves the entry for a strict key.
func (m *Store) GetCache(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.caches[key]
	if !ok {
		return nil, ragonometrics.ErrCacheMiss
	}
	cp := *e
	return &cp, nil
}

// GetCacheByFallback retrieves the oldest entry carrying the fallback key.
func (m *Store) GetCacheByFallback(_ context.Context, fallbackKey string) (*cache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *cache.Entry
	for _, e := range m.caches {
		if e.FallbackKey != fallbackKey {
			continue
		}
		if best == nil || e.CreatedAt.Before(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, ragonometrics.ErrCacheMiss
	}
	cp := *best
	return &cp, nil
}

// ListCacheByPaper returns all entries for a paper, oldest first.
func (m *Store) ListCacheByPaper(_ context.Context, paperID string) ([]*cache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*cache.Entry, 0)
	for _, e := range m.caches {
		if e.PaperID != paperID {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// CountCache returns the total number of cache entries.
func (m *Store) CountCache(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.caches)), nil
}

// PurgeCache removes entries created before the cutoff.
func (m *Store) PurgeCache(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.caches {
		if e.CreatedAt.Before(before) {
			delete(m.caches, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].FailedAt.After(matched[j].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, ragonometrics.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return ragonometrics.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Index Store
// ──────────────────────────────────────────────────

// PutIndexVersion records a built index version.
func (m *Store) PutIndexVersion(_ context.Context, v *index.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *v
	m.versions[v.ID.String()] = &cp
	return nil
}

// GetIndexVersion retrieves a version by ID.
func (m *Store) GetIndexVersion(_ context.Context, indexID id.IndexID) (*index.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[indexID.String()]
	if !ok {
		return nil, ragonometrics.ErrIndexVersionNotFound
	}
	cp := *v
	return &cp, nil
}

// LatestIndexVersion returns the most recently recorded version for a
// corpus fingerprint. An empty configHash matches any configuration.
func (m *Store) LatestIndexVersion(_ context.Context, corpusFingerprint, configHash string) (*index.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *index.Version
	for _, v := range m.versions {
		if v.CorpusFingerprint != corpusFingerprint {
			continue
		}
		if configHash != "" && v.ConfigHash != configHash {
			continue
		}
		if best == nil || v.CreatedAt.After(best.CreatedAt) {
			best = v
		}
	}
	if best == nil {
		return nil, ragonometrics.ErrIndexVersionNotFound
	}
	cp := *best
	return &cp, nil
}

// ListIndexVersions returns all versions for a corpus, newest first.
func (m *Store) ListIndexVersions(_ context.Context, corpusFingerprint string) ([]*index.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*index.Version, 0)
	for _, v := range m.versions {
		if v.CorpusFingerprint != corpusFingerprint {
			continue
		}
		cp := *v
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}
