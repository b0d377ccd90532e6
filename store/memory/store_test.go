package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Pipeline Store tests
// ──────────────────────────────────────────────────

func newRun(configHash string) *pipeline.Run {
	return &pipeline.Run{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewRunID(),
		Status:         pipeline.RunPending,
		ConfigHash:     configHash,
		ConfigSnapshot: []byte(`{}`),
	}
}

func TestRunCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	run := newRun("cfg1")
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, run); !errors.Is(err, ragonometrics.ErrRunAlreadyExists) {
		t.Fatalf("duplicate CreateRun: got %v, want ErrRunAlreadyExists", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ConfigHash != "cfg1" {
		t.Errorf("ConfigHash = %q, want %q", got.ConfigHash, "cfg1")
	}

	if _, err := s.GetRun(ctx, id.NewRunID()); !errors.Is(err, ragonometrics.ErrRunNotFound) {
		t.Fatalf("GetRun unknown: got %v, want ErrRunNotFound", err)
	}
}

func TestRunUpdateIsolation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	run := newRun("cfg1")
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Status = pipeline.RunRunning
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, _ := s.GetRun(ctx, run.ID)
	got.Status = pipeline.RunFailed // mutating the copy must not leak

	again, _ := s.GetRun(ctx, run.ID)
	if again.Status != pipeline.RunRunning {
		t.Errorf("Status = %q, want %q (copy leaked)", again.Status, pipeline.RunRunning)
	}
}

func TestRunList(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newRun("cfgA")
	a.Workstream = "baseline"
	b := newRun("cfgB")
	b.Workstream = "experiment"
	b.Status = pipeline.RunCompleted
	for _, r := range []*pipeline.Run{a, b} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, pipeline.ListOpts{Workstream: "experiment"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID.String() != b.ID.String() {
		t.Fatalf("expected only the experiment run, got %d runs", len(runs))
	}

	runs, _ = s.ListRuns(ctx, pipeline.ListOpts{Status: pipeline.RunPending})
	if len(runs) != 1 || runs[0].ID.String() != a.ID.String() {
		t.Fatalf("expected only the pending run, got %d runs", len(runs))
	}
}

func newStage(runID id.RunID, stage pipeline.Stage, status pipeline.StageStatus, key string) *pipeline.StageRecord {
	return &pipeline.StageRecord{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewStageID(),
		RunID:          runID,
		Stage:          stage,
		Status:         status,
		IdempotencyKey: key,
	}
}

func TestStageUniquePerRun(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	runID := id.NewRunID()
	rec := newStage(runID, pipeline.StagePrep, pipeline.StageRunning, "k1")
	if err := s.CreateStage(ctx, rec); err != nil {
		t.Fatalf("CreateStage: %v", err)
	}
	dup := newStage(runID, pipeline.StagePrep, pipeline.StageRunning, "k1")
	if err := s.CreateStage(ctx, dup); !errors.Is(err, ragonometrics.ErrStageAlreadyExists) {
		t.Fatalf("duplicate CreateStage: got %v, want ErrStageAlreadyExists", err)
	}
	// Same stage on a different run is fine.
	other := newStage(id.NewRunID(), pipeline.StagePrep, pipeline.StageRunning, "k1")
	if err := s.CreateStage(ctx, other); err != nil {
		t.Fatalf("CreateStage other run: %v", err)
	}
}

func TestStageListOrder(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	runID := id.NewRunID()
	// Insert deliberately out of order.
	for _, st := range []pipeline.Stage{pipeline.StageIndex, pipeline.StagePrep, pipeline.StageEnrich} {
		if err := s.CreateStage(ctx, newStage(runID, st, pipeline.StageCompleted, "k")); err != nil {
			t.Fatalf("CreateStage %s: %v", st, err)
		}
	}

	recs, err := s.ListStages(ctx, runID)
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	want := []pipeline.Stage{pipeline.StagePrep, pipeline.StageEnrich, pipeline.StageIndex}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, st := range want {
		if recs[i].Stage != st {
			t.Errorf("recs[%d].Stage = %q, want %q", i, recs[i].Stage, st)
		}
	}
}

func TestFindReusableStage(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	me := id.NewRunID()
	older := newStage(id.NewRunID(), pipeline.StageIngest, pipeline.StageCompleted, "shared")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newStage(id.NewRunID(), pipeline.StageIngest, pipeline.StageCompleted, "shared")
	mine := newStage(me, pipeline.StageIngest, pipeline.StageCompleted, "shared")
	running := newStage(id.NewRunID(), pipeline.StageIngest, pipeline.StageRunning, "shared")
	for _, rec := range []*pipeline.StageRecord{older, newer, mine, running} {
		if err := s.CreateStage(ctx, rec); err != nil {
			t.Fatalf("CreateStage: %v", err)
		}
	}

	got, err := s.FindReusableStage(ctx, "shared", me)
	if err != nil {
		t.Fatalf("FindReusableStage: %v", err)
	}
	if got.ID.String() != older.ID.String() {
		t.Errorf("expected the oldest completed record from another run")
	}

	if _, err := s.FindReusableStage(ctx, "absent", me); !errors.Is(err, ragonometrics.ErrStageNotFound) {
		t.Fatalf("FindReusableStage absent key: got %v, want ErrStageNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func newTestJob(name, queue string, priority int) *job.Job {
	return &job.Job{
		Entity:      ragonometrics.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       queue,
		Payload:     []byte(`{"test":true}`),
		Status:      job.StatusQueued,
		Priority:    priority,
		MaxAttempts: 3,
	}
}

func TestJobClaimOrdering(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	low := newTestJob("low", "runs", 0)
	low.CreatedAt = low.CreatedAt.Add(-2 * time.Hour)
	high := newTestJob("high", "runs", 5)
	oldLow := newTestJob("old-low", "runs", 0)
	oldLow.CreatedAt = oldLow.CreatedAt.Add(-3 * time.Hour)
	for _, j := range []*job.Job{low, high, oldLow} {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	worker := id.NewWorkerID()
	want := []string{"high", "old-low", "low"}
	for _, name := range want {
		j, err := s.ClaimJob(ctx, []string{"runs"}, worker, time.Minute)
		if err != nil {
			t.Fatalf("ClaimJob: %v", err)
		}
		if j.Name != name {
			t.Errorf("claimed %q, want %q", j.Name, name)
		}
		if j.Status != job.StatusClaimed {
			t.Errorf("Status = %q, want claimed", j.Status)
		}
		if j.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", j.Attempts)
		}
	}

	if _, err := s.ClaimJob(ctx, []string{"runs"}, worker, time.Minute); !errors.Is(err, ragonometrics.ErrJobNotClaimable) {
		t.Fatalf("empty queue claim: got %v, want ErrJobNotClaimable", err)
	}
}

func TestJobClaimExclusive(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	const jobs = 20
	const workers = 8
	for i := 0; i < jobs; i++ {
		if err := s.EnqueueJob(ctx, newTestJob("j", "runs", 0)); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	var claimed int64
	seen := sync.Map{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				j, err := s.ClaimJob(ctx, []string{"runs"}, worker, time.Minute)
				if errors.Is(err, ragonometrics.ErrJobNotClaimable) {
					return
				}
				if err != nil {
					t.Errorf("ClaimJob: %v", err)
					return
				}
				if _, dup := seen.LoadOrStore(j.ID.String(), worker.String()); dup {
					t.Errorf("job %s claimed twice inside one lease window", j.ID)
				}
				atomic.AddInt64(&claimed, 1)
			}
		}()
	}
	wg.Wait()

	if claimed != jobs {
		t.Fatalf("claimed %d jobs, want %d", claimed, jobs)
	}
}

func TestJobLeaseExpiryReclaim(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newTestJob("j", "runs", 0)
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w1 := id.NewWorkerID()
	if _, err := s.ClaimJob(ctx, []string{"runs"}, w1, -time.Second); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// The lease is already expired: a second worker may retake the job.
	w2 := id.NewWorkerID()
	got, err := s.ClaimJob(ctx, []string{"runs"}, w2, time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if got.ClaimedBy.String() != w2.String() {
		t.Errorf("ClaimedBy = %s, want %s", got.ClaimedBy, w2)
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}

	// The original claimant's heartbeat must now be rejected.
	if err := s.HeartbeatJob(ctx, j.ID, w1, time.Minute); !errors.Is(err, ragonometrics.ErrInvalidState) {
		t.Fatalf("stale heartbeat: got %v, want ErrInvalidState", err)
	}
}

func TestJobHeartbeatExtendsLease(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newTestJob("j", "runs", 0)
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	worker := id.NewWorkerID()
	claimed, err := s.ClaimJob(ctx, []string{"runs"}, worker, time.Minute)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	if err := s.HeartbeatJob(ctx, claimed.ID, worker, 2*time.Minute); err != nil {
		t.Fatalf("HeartbeatJob: %v", err)
	}
	got, _ := s.GetJob(ctx, claimed.ID)
	if got.LeaseExpiresAt.Before(claimed.LeaseExpiresAt.Add(30 * time.Second)) {
		t.Error("heartbeat did not extend the lease")
	}

	if err := s.HeartbeatJob(ctx, id.NewJobID(), worker, time.Minute); !errors.Is(err, ragonometrics.ErrJobNotFound) {
		t.Fatalf("heartbeat unknown job: got %v, want ErrJobNotFound", err)
	}
}

func TestJobFindByIdempotencyKey(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	done := newTestJob("a", "runs", 0)
	done.IdempotencyKey = "key1"
	done.Status = job.StatusDone
	live := newTestJob("b", "runs", 0)
	live.IdempotencyKey = "key1"
	for _, j := range []*job.Job{done, live} {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	got, err := s.FindJobByIdempotencyKey(ctx, "key1")
	if err != nil {
		t.Fatalf("FindJobByIdempotencyKey: %v", err)
	}
	if got.ID.String() != live.ID.String() {
		t.Error("expected the non-terminal job")
	}

	if _, err := s.FindJobByIdempotencyKey(ctx, "absent"); !errors.Is(err, ragonometrics.ErrJobNotFound) {
		t.Fatalf("absent key: got %v, want ErrJobNotFound", err)
	}
}

func TestJobPurgeTerminal(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	doneOld := newTestJob("a", "runs", 0)
	doneOld.Status = job.StatusDone
	doneOld.FinishedAt = &old
	failedOld := newTestJob("b", "runs", 0)
	failedOld.Status = job.StatusFailed
	failedOld.FinishedAt = &old
	liveOld := newTestJob("c", "runs", 0)
	liveOld.CreatedAt = old
	for _, j := range []*job.Job{doneOld, failedOld, liveOld} {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	n, err := s.PurgeTerminalJobs(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeTerminalJobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d, want 2", n)
	}
	if _, err := s.GetJob(ctx, liveOld.ID); err != nil {
		t.Error("queued job must survive the purge")
	}
}

// ──────────────────────────────────────────────────
// Cache Store tests
// ──────────────────────────────────────────────────

func newEntry(key, fallback, paperID, questionID string) *cache.Entry {
	return &cache.Entry{
		Entity:      ragonometrics.NewEntity(),
		ID:          id.NewCacheID(),
		Key:         key,
		FallbackKey: fallback,
		PaperID:     paperID,
		QuestionID:  questionID,
		Model:       "m1",
		Answer:      "forty-two",
	}
}

func TestCachePutIsInsertOrIgnore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	first := newEntry("k1", "", "p1", "")
	if err := s.PutCache(ctx, first); err != nil {
		t.Fatalf("PutCache: %v", err)
	}

	second := newEntry("k1", "", "p1", "")
	second.Answer = "different"
	if err := s.PutCache(ctx, second); !errors.Is(err, ragonometrics.ErrCacheExists) {
		t.Fatalf("duplicate PutCache: got %v, want ErrCacheExists", err)
	}

	got, err := s.GetCache(ctx, "k1")
	if err != nil {
		t.Fatalf("GetCache: %v", err)
	}
	if got.Answer != "forty-two" {
		t.Errorf("Answer = %q, the first writer must win", got.Answer)
	}

	if _, err := s.GetCache(ctx, "absent"); !errors.Is(err, ragonometrics.ErrCacheMiss) {
		t.Fatalf("GetCache absent: got %v, want ErrCacheMiss", err)
	}
}

func TestCacheFallbackOldestWins(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	older := newEntry("k1", "fb", "p1", "")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newEntry("k2", "fb", "p1", "")
	for _, e := range []*cache.Entry{newer, older} {
		if err := s.PutCache(ctx, e); err != nil {
			t.Fatalf("PutCache: %v", err)
		}
	}

	got, err := s.GetCacheByFallback(ctx, "fb")
	if err != nil {
		t.Fatalf("GetCacheByFallback: %v", err)
	}
	if got.Key != "k1" {
		t.Errorf("Key = %q, want the oldest entry k1", got.Key)
	}
}

func TestCacheListByPaperAndPurge(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := newEntry("k1", "", "p1", "q1")
	old.CreatedAt = old.CreatedAt.Add(-time.Hour)
	for _, e := range []*cache.Entry{old, newEntry("k2", "", "p1", "q2"), newEntry("k3", "", "p2", "q1")} {
		if err := s.PutCache(ctx, e); err != nil {
			t.Fatalf("PutCache: %v", err)
		}
	}

	entries, err := s.ListCacheByPaper(ctx, "p1")
	if err != nil {
		t.Fatalf("ListCacheByPaper: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "k1" {
		t.Fatalf("expected 2 entries oldest first, got %d", len(entries))
	}

	n, err := s.PurgeCache(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("PurgeCache: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if c, _ := s.CountCache(ctx); c != 2 {
		t.Fatalf("CountCache = %d, want 2", c)
	}
}

// ──────────────────────────────────────────────────
// DLQ Store tests
// ──────────────────────────────────────────────────

func TestDLQPushGetReplay(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	entry := &dlq.Entry{
		ID:       id.NewDLQID(),
		JobID:    id.NewJobID(),
		JobName:  "run.execute",
		Queue:    "runs",
		Error:    "boom",
		FailedAt: time.Now().UTC(),
	}
	if err := s.PushDLQ(ctx, entry); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.ReplayedAt != nil {
		t.Error("fresh entry must not be marked replayed")
	}

	if err := s.ReplayDLQ(ctx, entry.ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	got, _ = s.GetDLQ(ctx, entry.ID)
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}

	if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, ragonometrics.ErrDLQNotFound) {
		t.Fatalf("GetDLQ unknown: got %v, want ErrDLQNotFound", err)
	}
}

func TestDLQPurgeAndCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	for i, age := range []time.Duration{-48 * time.Hour, -time.Minute} {
		entry := &dlq.Entry{
			ID:       id.NewDLQID(),
			JobID:    id.NewJobID(),
			JobName:  "run.execute",
			Queue:    "runs",
			Error:    "boom",
			FailedAt: now.Add(age),
		}
		if err := s.PushDLQ(ctx, entry); err != nil {
			t.Fatalf("PushDLQ %d: %v", i, err)
		}
	}

	n, err := s.PurgeDLQ(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if c, _ := s.CountDLQ(ctx); c != 1 {
		t.Fatalf("CountDLQ = %d, want 1", c)
	}
}

// ──────────────────────────────────────────────────
// Index Store tests
// ──────────────────────────────────────────────────

func TestIndexVersionLatest(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	older := &index.Version{
		Entity:            ragonometrics.NewEntity(),
		ID:                id.NewIndexID(),
		CorpusFingerprint: "corpus1",
		ConfigHash:        "cfgA",
	}
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := &index.Version{
		Entity:            ragonometrics.NewEntity(),
		ID:                id.NewIndexID(),
		CorpusFingerprint: "corpus1",
		ConfigHash:        "cfgB",
	}
	for _, v := range []*index.Version{older, newer} {
		if err := s.PutIndexVersion(ctx, v); err != nil {
			t.Fatalf("PutIndexVersion: %v", err)
		}
	}

	got, err := s.LatestIndexVersion(ctx, "corpus1", "")
	if err != nil {
		t.Fatalf("LatestIndexVersion: %v", err)
	}
	if got.ID.String() != newer.ID.String() {
		t.Error("expected the newest version for any config")
	}

	got, err = s.LatestIndexVersion(ctx, "corpus1", "cfgA")
	if err != nil {
		t.Fatalf("LatestIndexVersion cfgA: %v", err)
	}
	if got.ID.String() != older.ID.String() {
		t.Error("expected the cfgA version")
	}

	if _, err := s.LatestIndexVersion(ctx, "corpus2", ""); !errors.Is(err, ragonometrics.ErrIndexVersionNotFound) {
		t.Fatalf("unknown corpus: got %v, want ErrIndexVersionNotFound", err)
	}

	vs, err := s.ListIndexVersions(ctx, "corpus1")
	if err != nil {
		t.Fatalf("ListIndexVersions: %v", err)
	}
	if len(vs) != 2 || vs[0].ID.String() != newer.ID.String() {
		t.Fatalf("expected 2 versions newest first, got %d", len(vs))
	}
}
