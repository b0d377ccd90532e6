package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/backoff"
	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/config"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/hook"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/janitor"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/lineage"
	mw "github.com/badbayesian/ragonometrics-sub003/middleware"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
	"github.com/badbayesian/ragonometrics-sub003/queue"
	"github.com/badbayesian/ragonometrics-sub003/store"
	"github.com/badbayesian/ragonometrics-sub003/worker"
)

// JobExecuteRun is the job name under which enqueued pipeline runs
// execute on the worker pool.
const JobExecuteRun = "execute-run"

// RunPayload is the execute-run job payload.
type RunPayload struct {
	RunID string `json:"run_id"`
}

// Engine wires the pipeline runner, answer cache, index guardrail, job
// queue, and worker pool over one store.
type Engine struct {
	store  store.Store
	cfg    ragonometrics.Config
	logger *slog.Logger

	hooks    *hook.Registry
	registry *job.Registry

	runner    *pipeline.Runner
	answers   *cache.Service
	builder   *index.Builder
	guardrail *index.Guardrail

	dlqService *dlq.Service
	pool       *worker.Pool
	janitor    *janitor.Janitor

	// Stage collaborators.
	source         pipeline.Source
	enricher       pipeline.Enricher
	econ           pipeline.EconSource
	completer      cache.Completer
	vector         index.Engine
	embeddingModel string

	bo        backoff.Strategy
	mws       []mw.Middleware
	observers []hook.Observer
	retry     backoff.Policy
	retrySet  bool

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	janitorSchedule string

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the worker execution configuration.
func WithConfig(cfg ragonometrics.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithObserver registers a lifecycle observer with the engine.
func WithObserver(o hook.Observer) Option {
	return func(eng *Engine) { eng.observers = append(eng.observers, o) }
}

// WithMiddleware adds middleware to the engine's job execution chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy for failed jobs.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithRetryPolicy sets the retry policy applied to stage collaborator
// calls inside a run.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(eng *Engine) { eng.retry = p; eng.retrySet = true }
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithSource sets the document source for the prep and ingest stages.
func WithSource(s pipeline.Source) Option {
	return func(eng *Engine) { eng.source = s }
}

// WithEnricher sets the bibliographic metadata fetcher.
func WithEnricher(e pipeline.Enricher) Option {
	return func(eng *Engine) { eng.enricher = e }
}

// WithEconSource sets the economic data fetcher.
func WithEconSource(e pipeline.EconSource) Option {
	return func(eng *Engine) { eng.econ = e }
}

// WithCompleter sets the completion client backing the answer cache.
// Without one the agentic stage is dependency-starved and skips, and
// get-or-compute cache calls fail on miss.
func WithCompleter(c cache.Completer) Option {
	return func(eng *Engine) { eng.completer = c }
}

// WithVectorEngine sets the vector backend used by the index stage and
// the retrieval guardrail.
func WithVectorEngine(v index.Engine) Option {
	return func(eng *Engine) { eng.vector = v }
}

// WithEmbeddingModel sets the embedding model recorded on built index
// versions.
func WithEmbeddingModel(model string) Option {
	return func(eng *Engine) { eng.embeddingModel = model }
}

// WithJanitorSchedule sets the retention sweep schedule. Defaults to
// "@every 1h"; the retention window itself comes from the Config.
func WithJanitorSchedule(expr string) Option {
	return func(eng *Engine) { eng.janitorSchedule = expr }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine over the given store.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, ragonometrics.ErrNoStore
	}

	eng := &Engine{
		store:    s,
		cfg:      ragonometrics.DefaultConfig(),
		logger:   slog.Default(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.hooks = hook.NewRegistry(eng.logger)
	for _, o := range eng.observers {
		eng.hooks.Register(o)
	}

	eng.dlqService = dlq.NewService(s, s)
	eng.answers = cache.NewService(s, eng.completer, cache.WithLogger(eng.logger))

	if eng.vector != nil {
		eng.builder = index.NewBuilder(s, eng.vector, eng.embeddingModel, eng.logger)
		eng.guardrail = index.NewGuardrail(s, eng.vector, eng.logger)
	}

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithEmitter(eng.hooks),
		pipeline.WithLogger(eng.logger),
	}
	if eng.source != nil {
		runnerOpts = append(runnerOpts, pipeline.WithSource(eng.source))
	}
	if eng.enricher != nil {
		runnerOpts = append(runnerOpts, pipeline.WithEnricher(eng.enricher))
	}
	if eng.econ != nil {
		runnerOpts = append(runnerOpts, pipeline.WithEconSource(eng.econ))
	}
	// Without a completer the agentic stage is starved, not broken: the
	// runner sees no answerer and records a skip.
	if eng.completer != nil {
		runnerOpts = append(runnerOpts, pipeline.WithAnswerer(eng.answers))
	}
	if eng.builder != nil {
		runnerOpts = append(runnerOpts, pipeline.WithIndexer(eng.builder))
	}
	if eng.retrySet {
		runnerOpts = append(runnerOpts, pipeline.WithRetryPolicy(eng.retry))
	}
	eng.runner = pipeline.NewRunner(s, runnerOpts...)

	// Register the run execution job. Handlers are idempotent because
	// Execute resumes from terminal stage records; a lease-expiry re-claim
	// redoes at most one stage.
	job.RegisterDefinition(eng.registry, job.NewDefinition(
		JobExecuteRun,
		func(ctx context.Context, p RunPayload) error {
			runID, err := id.ParseRunID(p.RunID)
			if err != nil {
				return ragonometrics.E(ragonometrics.CodeValidation, "bad run id in payload", err)
			}
			_, err = eng.runner.Execute(ctx, runID)
			return err
		},
		job.WithMaxAttempts(eng.cfg.MaxAttempts),
	))

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/badbayesian/ragonometrics-sub003")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/badbayesian/ragonometrics-sub003")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging →
	// lineage → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Lineage(),
		mw.Timeout(eng.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.hooks, s, eng.dlqService, eng.bo, eng.logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(eng.cfg.Concurrency),
		worker.WithPoolQueues(eng.cfg.Queues),
		worker.WithPollInterval(eng.cfg.PollInterval),
		worker.WithLeaseDuration(eng.cfg.Lease),
		worker.WithHeartbeatInterval(eng.cfg.HeartbeatInterval),
	}
	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}
	eng.pool = worker.NewPool(s, executor, eng.hooks, eng.logger, poolOpts...)

	janitorOpts := []janitor.Option{janitor.WithLogger(eng.logger)}
	if eng.janitorSchedule != "" {
		janitorOpts = append(janitorOpts, janitor.WithSchedule(eng.janitorSchedule))
	}
	eng.janitor = janitor.New(s, eng.cfg.Retention, janitorOpts...)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue creates and enqueues a job with a typed payload.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. Lineage labels
// are captured from the context so workers restore them before the
// handler runs. A non-empty idempotency key with a live job already
// holding it collapses the enqueue to that job.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	if jobOpts.IdempotencyKey != "" {
		existing, err := eng.store.FindJobByIdempotencyKey(ctx, jobOpts.IdempotencyKey)
		switch {
		case err == nil:
			return existing, nil
		case errors.Is(err, ragonometrics.ErrJobNotFound):
		default:
			return nil, err
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewJobID(),
		Name:           name,
		Payload:        payload,
		Status:         job.StatusQueued,
		Queue:          jobOpts.Queue,
		Priority:       jobOpts.Priority,
		MaxAttempts:    jobOpts.MaxAttempts,
		Timeout:        jobOpts.Timeout,
		IdempotencyKey: jobOpts.IdempotencyKey,
		Lineage:        lineage.Capture(ctx),
		RunAt:          now,
	}
	if !jobOpts.RunAt.IsZero() {
		j.RunAt = jobOpts.RunAt
	}

	if err := eng.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}
	eng.hooks.EmitJobEnqueued(ctx, j)
	return j, nil
}

// StartRun creates a run from the resolved configuration and executes it
// synchronously in-process, returning the run in its terminal state.
func (eng *Engine) StartRun(ctx context.Context, eff config.Effective) (*pipeline.Run, error) {
	run, err := eng.runner.Start(ctx, eff)
	if err != nil {
		return nil, err
	}
	return eng.runner.Execute(ctx, run.ID)
}

// EnqueueRun persists a pending run and a queued execute-run job for the
// worker pool. A second enqueue of the same configuration while the first
// job is live collapses to the existing run and job instead of creating a
// duplicate.
func (eng *Engine) EnqueueRun(ctx context.Context, eff config.Effective, opts ...job.Option) (*pipeline.Run, *job.Job, error) {
	key := JobExecuteRun + ":" + eff.Hash

	existing, err := eng.store.FindJobByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		var p RunPayload
		if err := json.Unmarshal(existing.Payload, &p); err != nil {
			return nil, nil, fmt.Errorf("decode payload of job %s: %w", existing.ID, err)
		}
		runID, err := id.ParseRunID(p.RunID)
		if err != nil {
			return nil, nil, err
		}
		run, err := eng.store.GetRun(ctx, runID)
		if err != nil {
			return nil, nil, err
		}
		eng.logger.Info("enqueue collapsed to live run",
			slog.String("run_id", run.ID.String()),
			slog.String("job_id", existing.ID.String()),
			slog.String("config_hash", eff.Hash),
		)
		return run, existing, nil
	case errors.Is(err, ragonometrics.ErrJobNotFound):
	default:
		return nil, nil, err
	}

	run, err := eng.runner.Start(ctx, eff)
	if err != nil {
		return nil, nil, err
	}

	ctx = lineage.Restore(ctx, lineage.Labels{
		Workstream: run.Workstream,
		VariantArm: run.VariantArm,
	})
	allOpts := append([]job.Option{
		job.WithIdempotencyKey(key),
		job.WithMaxAttempts(eng.cfg.MaxAttempts),
	}, opts...)
	j, err := Enqueue(ctx, eng, JobExecuteRun, RunPayload{RunID: run.ID.String()}, allOpts...)
	if err != nil {
		return nil, nil, err
	}
	return run, j, nil
}

// GetRun retrieves a run by ID.
func (eng *Engine) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	return eng.store.GetRun(ctx, runID)
}

// ListRuns returns runs matching the given options, oldest first.
func (eng *Engine) ListRuns(ctx context.Context, opts pipeline.ListOpts) ([]*pipeline.Run, error) {
	return eng.store.ListRuns(ctx, opts)
}

// Stages returns all stage records of a run in pipeline order.
func (eng *Engine) Stages(ctx context.Context, runID id.RunID) ([]*pipeline.StageRecord, error) {
	return eng.store.ListStages(ctx, runID)
}

// StageOutput returns the persisted output payload of one completed
// stage. Stages that skipped or failed have no output to return.
func (eng *Engine) StageOutput(ctx context.Context, runID id.RunID, stage pipeline.Stage) (json.RawMessage, error) {
	rec, err := eng.store.GetStage(ctx, runID, stage)
	if err != nil {
		return nil, err
	}
	if rec.Status != pipeline.StageCompleted {
		return nil, ragonometrics.E(ragonometrics.CodeValidation,
			fmt.Sprintf("stage %s is %s, not completed", stage, rec.Status), nil)
	}
	return rec.Output, nil
}

// Report returns the run's final report. Every run that reached its
// terminal state has one, including failed runs.
func (eng *Engine) Report(ctx context.Context, runID id.RunID) (*pipeline.Report, error) {
	raw, err := eng.StageOutput(ctx, runID, pipeline.StageReport)
	if err != nil {
		return nil, err
	}
	var report pipeline.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report for run %s: %w", runID, err)
	}
	return &report, nil
}

// CancelRun marks a non-terminal run failed. A worker executing it stops
// at the next stage boundary.
func (eng *Engine) CancelRun(ctx context.Context, runID id.RunID) error {
	run, err := eng.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return ragonometrics.ErrInvalidState
	}
	now := time.Now().UTC()
	run.Status = pipeline.RunFailed
	run.Error = "cancelled"
	run.FinishedAt = &now
	run.Touch()
	return eng.store.UpdateRun(ctx, run)
}

// LookupAnswer resolves a conversational question against the answer
// cache without computing: strict key first, then fallback. ErrCacheMiss
// when neither tier has it.
func (eng *Engine) LookupAnswer(ctx context.Context, question, paperID, model string, topK int, contextHash string) (*cache.Result, error) {
	return eng.answers.Lookup(ctx, question, paperID, model, topK, contextHash)
}

// Ask resolves a conversational question, computing and writing through
// on a miss.
func (eng *Engine) Ask(ctx context.Context, question, paperID, model string, topK int, contextHash string) (*cache.Result, error) {
	return eng.answers.Ask(ctx, question, paperID, model, topK, contextHash)
}

// Coverage reports which of the given question identifiers are cached
// for one paper and model, and which are missing.
func (eng *Engine) Coverage(ctx context.Context, paperID, model string, questionIDs []string) (cached, missing []string, err error) {
	return eng.answers.Coverage(ctx, paperID, model, questionIDs)
}

// Search runs a guarded similarity query: index/metadata agreement is
// verified first, and a mismatch refuses the query unless allowMismatch
// is set. Requires a vector engine.
func (eng *Engine) Search(ctx context.Context, corpusFingerprint, query string, topK int, allowMismatch bool) (*index.SearchResult, error) {
	if eng.guardrail == nil {
		return nil, ragonometrics.E(ragonometrics.CodeUnavailable, "no vector engine configured", nil)
	}
	return eng.guardrail.Search(ctx, corpusFingerprint, query, topK, allowMismatch)
}

// VerifyIndex checks artifact/metadata agreement for the corpus without
// running a query. Requires a vector engine.
func (eng *Engine) VerifyIndex(ctx context.Context, corpusFingerprint string) (*index.Version, error) {
	if eng.guardrail == nil {
		return nil, ragonometrics.E(ragonometrics.CodeUnavailable, "no vector engine configured", nil)
	}
	return eng.guardrail.Verify(ctx, corpusFingerprint)
}

// StartWorkers starts the worker pool and the retention janitor.
func (eng *Engine) StartWorkers(ctx context.Context) error {
	if err := eng.janitor.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the worker pool and janitor. When the given
// context has no deadline, the configured shutdown timeout applies.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	poolErr := eng.pool.Stop(ctx)
	if err := eng.janitor.Stop(ctx); err != nil {
		eng.logger.Error("janitor stop error", slog.String("error", err.Error()))
	}
	return poolErr
}

// Hooks returns the lifecycle hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Runner returns the pipeline runner.
func (eng *Engine) Runner() *pipeline.Runner { return eng.runner }

// Cache returns the answer cache service.
func (eng *Engine) Cache() *cache.Service { return eng.answers }

// DLQService returns the dead letter service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Store returns the underlying aggregate store.
func (eng *Engine) Store() store.Store { return eng.store }

// WorkerID returns the worker pool's unique identifier.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }
