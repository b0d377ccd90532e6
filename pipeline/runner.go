package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/backoff"
	"github.com/badbayesian/ragonometrics-sub003/config"
	"github.com/badbayesian/ragonometrics-sub003/fingerprint"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/lineage"
)

// Runner executes the fixed stage sequence for one run: creating stage
// records, reusing completed work from other runs by idempotency key,
// downgrading starved optional stages to skips, and always finishing with
// a report.
//
// Execute is crash-recoverable: it re-reads everything it needs from the
// store, so a run interrupted mid-stage can be picked up by a fresh
// process and resumed from the first stage without a terminal record.
type Runner struct {
	store    Store
	source   Source
	enricher Enricher
	econ     EconSource
	answerer Answerer
	indexer  Indexer
	emitter  Emitter
	retry    backoff.Policy
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSource sets the document source.
func WithSource(s Source) RunnerOption { return func(r *Runner) { r.source = s } }

// WithEnricher sets the bibliographic metadata fetcher.
func WithEnricher(e Enricher) RunnerOption { return func(r *Runner) { r.enricher = e } }

// WithEconSource sets the economic data fetcher.
func WithEconSource(e EconSource) RunnerOption { return func(r *Runner) { r.econ = e } }

// WithAnswerer sets the question answerer (normally the cache layer).
func WithAnswerer(a Answerer) RunnerOption { return func(r *Runner) { r.answerer = a } }

// WithIndexer sets the vector index builder.
func WithIndexer(i Indexer) RunnerOption { return func(r *Runner) { r.indexer = i } }

// WithEmitter sets the lifecycle emitter.
func WithEmitter(e Emitter) RunnerOption { return func(r *Runner) { r.emitter = e } }

// WithRetryPolicy sets the retry policy applied to collaborator calls.
func WithRetryPolicy(p backoff.Policy) RunnerOption { return func(r *Runner) { r.retry = p } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

// NewRunner creates a runner over the given store. Collaborators are
// optional: a missing required collaborator surfaces as a stage failure,
// a missing optional one as a stage skip.
func NewRunner(store Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:   store,
		emitter: NopEmitter{},
		retry:   backoff.DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a new pending run from a resolved configuration. Lineage
// labels come from the configuration when set, otherwise from the context.
func (r *Runner) Start(ctx context.Context, eff config.Effective) (*Run, error) {
	labels := lineage.Capture(ctx)
	if eff.Pipeline.Workstream != "" {
		labels.Workstream = eff.Pipeline.Workstream
	}
	if eff.Pipeline.VariantArm != "" {
		labels.VariantArm = eff.Pipeline.VariantArm
	}

	run := &Run{
		Entity:         ragonometrics.NewEntity(),
		ID:             id.NewRunID(),
		Status:         RunPending,
		ConfigHash:     eff.Hash,
		ConfigSnapshot: eff.Snapshot,
		Workstream:     labels.Workstream,
		VariantArm:     labels.VariantArm,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// execState accumulates decoded stage outputs as the sequence advances.
// Resumed and reused stages are restored into it from their stored payloads.
type execState struct {
	prep         PrepOutput
	ingest       IngestOutput
	enrich       EnrichOutput
	econ         EconOutput
	agentic      AgenticOutput
	index        IndexOutput
	evaluate     EvaluateOutput
	evaluateDone bool
}

// Execute runs (or resumes) the stage sequence for runID and returns the
// run in its terminal state. A required stage failure fails the run, but
// the report stage still executes over whatever completed, so callers get
// partial results instead of an opaque error.
func (r *Runner) Execute(ctx context.Context, runID id.RunID) (*Run, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	var cfg config.Pipeline
	if err := json.Unmarshal(run.ConfigSnapshot, &cfg); err != nil {
		return nil, ragonometrics.E(ragonometrics.CodeValidation, "decode config snapshot", err)
	}

	now := time.Now().UTC()
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	run.Status = RunRunning
	run.Touch()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}
	r.emitter.EmitRunStarted(ctx, run)
	r.logger.Info("run started", "run_id", run.ID, "config_hash", run.ConfigHash)
	start := time.Now()

	st := &execState{}
	fatal := r.executeStages(ctx, run, cfg, st)

	// The report stage is unconditional: failed runs report too.
	if err := r.runReport(ctx, run, st, fatal); err != nil && fatal == nil {
		fatal = err
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if fatal != nil {
		run.Status = RunFailed
		run.Error = fatal.Error()
	} else {
		run.Status = RunCompleted
	}
	run.Touch()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return run, err
	}

	if fatal != nil {
		r.emitter.EmitRunFailed(ctx, run, fatal)
		r.logger.Error("run failed", "run_id", run.ID, "error", fatal)
		return run, fatal
	}
	r.emitter.EmitRunCompleted(ctx, run, time.Since(start))
	r.logger.Info("run completed", "run_id", run.ID, "elapsed", time.Since(start))
	return run, nil
}

// executeStages walks the sequence up to and including evaluate. The
// first fatal stage error stops the walk; evaluate therefore never runs
// after a required-stage failure.
func (r *Runner) executeStages(ctx context.Context, run *Run, cfg config.Pipeline, st *execState) error {
	for _, stage := range Order() {
		if stage == StageReport {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ragonometrics.E(ragonometrics.CodeFatalStage, "run cancelled", err)
		}
		// Cancellation is cooperative: a run marked failed externally
		// stops at the next stage boundary.
		if cur, err := r.store.GetRun(ctx, run.ID); err == nil && cur.Status == RunFailed {
			return ragonometrics.E(ragonometrics.CodeFatalStage, "run cancelled externally", nil)
		}
		if err := r.runStage(ctx, run, cfg, stage, st); err != nil {
			return err
		}
	}
	return nil
}

// runStage drives one stage to a terminal record: resumed, reused,
// skipped, completed, or failed.
func (r *Runner) runStage(ctx context.Context, run *Run, cfg config.Pipeline, stage Stage, st *execState) error {
	// Crash recovery: a terminal record from a prior attempt stands.
	rec, err := r.store.GetStage(ctx, run.ID, stage)
	switch {
	case err == nil:
		switch rec.Status {
		case StageCompleted:
			return r.restore(ctx, run, stage, rec.Output, st)
		case StageSkipped:
			return nil
		case StageFailed:
			return ragonometrics.E(ragonometrics.CodeFatalStage,
				fmt.Sprintf("stage %s failed", stage), errors.New(rec.Error))
		}
		// A running record means the prior attempt crashed mid-stage.
		// Stage work is idempotent, so redo it in place.
	case errors.Is(err, ragonometrics.ErrStageNotFound):
		rec = nil
	default:
		return err
	}

	inputHash := r.inputHash(run, cfg, stage, st)
	key := fingerprint.StageKey(string(stage), run.ConfigHash, inputHash)
	now := time.Now().UTC()

	if rec == nil {
		rec = &StageRecord{
			Entity:         ragonometrics.NewEntity(),
			ID:             id.NewStageID(),
			RunID:          run.ID,
			Stage:          stage,
			Status:         StageRunning,
			IdempotencyKey: key,
			InputHash:      inputHash,
			StartedAt:      &now,
		}
		if err := r.store.CreateStage(ctx, rec); err != nil {
			return err
		}
	} else {
		rec.Status = StageRunning
		rec.IdempotencyKey = key
		rec.InputHash = inputHash
		rec.StartedAt = &now
	}

	if reason := r.skipReason(cfg, stage); reason != "" {
		return r.finishSkipped(ctx, rec, reason)
	}

	// Reuse: a completed record with the same idempotency key from another
	// run did identical work. Evaluate is run-local and never reused.
	if stage != StageEvaluate {
		src, err := r.store.FindReusableStage(ctx, key, run.ID)
		switch {
		case err == nil:
			srcRun := src.RunID
			rec.Status = StageCompleted
			rec.Output = src.Output
			rec.ReuseSourceRunID = &srcRun
			if err := r.finishStage(ctx, rec); err != nil {
				return err
			}
			r.emitter.EmitStageReused(ctx, rec, srcRun)
			r.logger.Info("stage reused", "run_id", run.ID, "stage", stage, "source_run_id", srcRun)
			return r.restore(ctx, run, stage, rec.Output, st)
		case errors.Is(err, ragonometrics.ErrStageNotFound):
			// Fresh computation.
		default:
			return err
		}
	}

	out, err := r.execStage(ctx, run, cfg, stage, st)
	if err != nil {
		// An optional stage leans on collaborators the run can live
		// without, so any collaborator error downgrades to a skip. Store
		// backends wrap connectivity failures without a code, so this
		// cannot key on IsUnavailable alone. Cancellation still aborts,
		// and an explicit fatal verdict from the stage itself stands.
		if stage.Optional() && ctx.Err() == nil && ragonometrics.CodeOf(err) != ragonometrics.CodeFatalStage {
			r.logger.Warn("optional stage skipped", "run_id", run.ID, "stage", stage, "error", err)
			rec.Error = err.Error()
			return r.finishSkipped(ctx, rec, SkipUnavailable)
		}
		rec.Status = StageFailed
		rec.Error = err.Error()
		if ferr := r.finishStage(ctx, rec); ferr != nil {
			return ferr
		}
		r.emitter.EmitStageFailed(ctx, rec, err)
		return ragonometrics.E(ragonometrics.CodeFatalStage, fmt.Sprintf("stage %s", stage), err)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s output: %w", stage, err)
	}
	rec.Status = StageCompleted
	rec.Output = payload
	if err := r.finishStage(ctx, rec); err != nil {
		return err
	}
	r.emitter.EmitStageCompleted(ctx, rec)
	r.logger.Debug("stage completed", "run_id", run.ID, "stage", stage)
	return nil
}

// inputHash returns the stage's input identity. Prep depends only on the
// corpus selection; the middle stages hang off the corpus fingerprint prep
// established; evaluate and report are run-local and use the run ID so
// their keys never match across runs.
func (r *Runner) inputHash(run *Run, cfg config.Pipeline, stage Stage, st *execState) string {
	switch stage {
	case StagePrep:
		h, err := fingerprint.Config(cfg.Corpus)
		if err != nil {
			return ""
		}
		return h
	case StageIngest, StageEnrich, StageEcon, StageAgentic, StageIndex:
		return run.CorpusFingerprint
	default:
		return run.ID.String()
	}
}

// skipReason returns the skip reason for a stage the run should not
// execute, or "" when the stage must run.
func (r *Runner) skipReason(cfg config.Pipeline, stage Stage) string {
	switch stage {
	case StageEcon:
		if !cfg.Econ.Enabled {
			return SkipDisabled
		}
		if r.econ == nil {
			return SkipUnavailable
		}
	case StageAgentic:
		if !cfg.Agentic.Enabled {
			return SkipDisabled
		}
		if r.answerer == nil {
			return SkipUnavailable
		}
	case StageIndex:
		if !cfg.Index.Enabled {
			return SkipDisabled
		}
		if r.indexer == nil {
			return SkipUnavailable
		}
	}
	return ""
}

func (r *Runner) finishSkipped(ctx context.Context, rec *StageRecord, reason string) error {
	rec.Status = StageSkipped
	rec.SkipReason = reason
	if err := r.finishStage(ctx, rec); err != nil {
		return err
	}
	r.emitter.EmitStageSkipped(ctx, rec)
	return nil
}

// finishStage stamps and persists the single terminal update of a record.
func (r *Runner) finishStage(ctx context.Context, rec *StageRecord) error {
	now := time.Now().UTC()
	rec.FinishedAt = &now
	rec.Touch()
	return r.store.UpdateStage(ctx, rec)
}

// restore decodes a completed stage's payload back into the execution
// state so later stages see the same inputs a fresh run would have.
func (r *Runner) restore(ctx context.Context, run *Run, stage Stage, output json.RawMessage, st *execState) error {
	var dst any
	switch stage {
	case StagePrep:
		dst = &st.prep
	case StageIngest:
		dst = &st.ingest
	case StageEnrich:
		dst = &st.enrich
	case StageEcon:
		dst = &st.econ
	case StageAgentic:
		dst = &st.agentic
	case StageIndex:
		dst = &st.index
	case StageEvaluate:
		dst = &st.evaluate
	default:
		return nil
	}
	if err := json.Unmarshal(output, dst); err != nil {
		return fmt.Errorf("decode %s output: %w", stage, err)
	}
	if stage == StageEvaluate {
		st.evaluateDone = true
	}
	if stage == StagePrep && run.CorpusFingerprint != st.prep.CorpusFingerprint {
		run.CorpusFingerprint = st.prep.CorpusFingerprint
		run.Touch()
		return r.store.UpdateRun(ctx, run)
	}
	return nil
}

// call wraps one collaborator call in the retry policy.
func (r *Runner) call(ctx context.Context, op func(ctx context.Context) error) error {
	return r.retry.Do(ctx, op)
}

func (r *Runner) execStage(ctx context.Context, run *Run, cfg config.Pipeline, stage Stage, st *execState) (any, error) {
	switch stage {
	case StagePrep:
		return r.execPrep(ctx, run, cfg, st)
	case StageIngest:
		return r.execIngest(ctx, cfg, st)
	case StageEnrich:
		return r.execEnrich(ctx, st)
	case StageEcon:
		return r.execEcon(ctx, st)
	case StageAgentic:
		return r.execAgentic(ctx, cfg, st)
	case StageIndex:
		return r.execIndex(ctx, run, st)
	case StageEvaluate:
		return r.execEvaluate(st)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// execPrep lists and validates the input set and pins the corpus
// fingerprint onto the run.
func (r *Runner) execPrep(ctx context.Context, run *Run, cfg config.Pipeline, st *execState) (PrepOutput, error) {
	var out PrepOutput
	if r.source == nil {
		return out, ragonometrics.E(ragonometrics.CodeUnavailable, "no document source configured", nil)
	}

	var docs []Document
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		docs, err = r.source.ListDocuments(ctx, cfg.Corpus.Selector)
		return err
	})
	if err != nil {
		return out, err
	}

	docs = filterInclude(docs, cfg.Corpus.Include)
	if len(docs) == 0 && cfg.Prep.FailFast {
		return out, ragonometrics.E(ragonometrics.CodeValidation,
			fmt.Sprintf("empty corpus for selector %q", cfg.Corpus.Selector), nil)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	files := make([]fingerprint.File, len(docs))
	out.Files = make([]PrepFile, len(docs))
	for i, d := range docs {
		files[i] = fingerprint.File{Name: d.Name, ContentHash: d.ContentHash}
		out.Files[i] = PrepFile{
			Document: d,
			DocID:    fingerprint.DocID(d.Identity + "#" + d.ContentHash),
		}
	}
	out.CorpusFingerprint = fingerprint.Corpus(files)
	out.FileCount = len(docs)
	st.prep = out

	run.CorpusFingerprint = out.CorpusFingerprint
	run.Touch()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return out, err
	}
	return out, nil
}

func filterInclude(docs []Document, include []string) []Document {
	if len(include) == 0 {
		return docs
	}
	kept := docs[:0]
	for _, d := range docs {
		for _, pat := range include {
			if ok, err := path.Match(pat, d.Name); err == nil && ok {
				kept = append(kept, d)
				break
			}
		}
	}
	return kept
}

// execIngest extracts text per document and derives page-aligned chunks
// with stable identifiers. Unreadable documents fail the stage under
// fail-fast, otherwise they are dropped with a warning.
func (r *Runner) execIngest(ctx context.Context, cfg config.Pipeline, st *execState) (IngestOutput, error) {
	var out IngestOutput
	for _, f := range st.prep.Files {
		var ext Extraction
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			ext, err = r.source.ExtractText(ctx, f.Document)
			return err
		})
		if err != nil {
			if cfg.Prep.FailFast {
				return out, fmt.Errorf("extract %s: %w", f.Name, err)
			}
			r.logger.Warn("unreadable document dropped", "doc", f.Name, "error", err)
			continue
		}

		doc := IngestedDoc{
			DocID:     f.DocID,
			Identity:  f.Identity,
			Name:      f.Name,
			PageCount: len(ext.Pages),
			WordCount: ext.WordCount,
		}
		offset := 0
		for _, page := range ext.Pages {
			start, end := offset, offset+len(page.Text)
			offset = end
			if strings.TrimSpace(page.Text) == "" {
				continue
			}
			hash := fingerprint.Content([]byte(page.Text))
			doc.Chunks = append(doc.Chunks, Chunk{
				ChunkID:     fingerprint.ChunkID(f.DocID, start, end, hash),
				DocID:       f.DocID,
				Start:       start,
				End:         end,
				ContentHash: hash,
				Text:        page.Text,
			})
		}
		out.Documents = append(out.Documents, doc)
		out.ChunkCount += len(doc.Chunks)
		out.WordCount += doc.WordCount
	}
	st.ingest = out
	return out, nil
}

// execEnrich fetches bibliographic metadata per document. Partial
// failures are recorded; the stage fails only when every fetch failed.
// Without an enricher the stage completes empty, since enrichment is
// additive.
func (r *Runner) execEnrich(ctx context.Context, st *execState) (EnrichOutput, error) {
	out := EnrichOutput{Metadata: make(map[string]Metadata)}
	if r.enricher == nil {
		st.enrich = out
		return out, nil
	}
	var firstErr error
	for _, d := range st.ingest.Documents {
		var meta Metadata
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			meta, err = r.enricher.Fetch(ctx, d.Identity)
			return err
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if out.Failures == nil {
				out.Failures = make(map[string]string)
			}
			out.Failures[d.DocID] = err.Error()
			continue
		}
		out.Metadata[d.DocID] = meta
	}
	if len(out.Metadata) == 0 && firstErr != nil {
		return out, firstErr
	}
	st.enrich = out
	return out, nil
}

// execEcon fetches economic context series per document. The stage fails
// only when every fetch failed.
func (r *Runner) execEcon(ctx context.Context, st *execState) (EconOutput, error) {
	out := EconOutput{Series: make(map[string][]EconSeries)}
	var firstErr error
	for _, d := range st.ingest.Documents {
		var series []EconSeries
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			series, err = r.econ.Fetch(ctx, d.Identity)
			return err
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if out.Failures == nil {
				out.Failures = make(map[string]string)
			}
			out.Failures[d.DocID] = err.Error()
			continue
		}
		out.Series[d.DocID] = series
	}
	if len(out.Series) == 0 && firstErr != nil {
		return out, firstErr
	}
	st.econ = out
	return out, nil
}

// execAgentic fans the structured question set out over the corpus with
// bounded concurrency. Per-item failures are recorded on their answers;
// the stage fails only when nothing was answered.
func (r *Runner) execAgentic(ctx context.Context, cfg config.Pipeline, st *execState) (AgenticOutput, error) {
	var out AgenticOutput
	qs := cfg.Agentic.Questions
	docs := st.ingest.Documents
	if len(qs) == 0 || len(docs) == 0 {
		st.agentic = out
		return out, nil
	}

	answers := make([]Answer, len(docs)*len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Agentic.Concurrency)
	for di, d := range docs {
		for qi, q := range qs {
			di, qi, d, q := di, qi, d, q
			g.Go(func() error {
				var ans Answer
				err := r.call(gctx, func(ctx context.Context) error {
					var err error
					ans, err = r.answerer.Answer(ctx, d.DocID, q.ID, q.Text, cfg.Model.Completion, cfg.Model.TopK)
					return err
				})
				if err != nil {
					ans = Answer{QuestionID: q.ID, Question: q.Text, Error: err.Error()}
				}
				answers[di*len(qs)+qi] = ans
				return nil
			})
		}
	}
	// Item errors are captured on the answers; Wait only propagates
	// context cancellation.
	if err := g.Wait(); err != nil {
		return out, err
	}

	out.Answers = answers
	var firstErr string
	for _, a := range answers {
		switch {
		case a.Error != "":
			out.Failed++
			if firstErr == "" {
				firstErr = a.Error
			}
		default:
			out.Answered++
			if a.CacheHit {
				out.CacheHits++
			}
		}
	}
	if out.Answered == 0 && out.Failed > 0 {
		return out, ragonometrics.E(ragonometrics.CodeFatalStage,
			"all agentic items failed", errors.New(firstErr))
	}
	st.agentic = out
	return out, nil
}

// execIndex builds the vector index over the corpus chunks and carries
// back its recorded version summary.
func (r *Runner) execIndex(ctx context.Context, run *Run, st *execState) (IndexOutput, error) {
	var out IndexOutput
	var chunks []Chunk
	for _, d := range st.ingest.Documents {
		chunks = append(chunks, d.Chunks...)
	}
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		out.IndexSummary, err = r.indexer.BuildIndex(ctx, run.CorpusFingerprint, run.ConfigHash, chunks)
		return err
	})
	if err != nil {
		return out, err
	}
	st.index = out
	return out, nil
}

// execEvaluate derives aggregate metrics from the captured stage outputs.
// Pure computation; skipped upstream stages contribute zeros.
func (r *Runner) execEvaluate(st *execState) (EvaluateOutput, error) {
	out := EvaluateOutput{
		Documents: len(st.ingest.Documents),
		Chunks:    st.ingest.ChunkCount,
		Words:     st.ingest.WordCount,
	}
	if out.Documents > 0 {
		out.EnrichCoverage = float64(len(st.enrich.Metadata)) / float64(out.Documents)
	}
	if total := st.agentic.Answered + st.agentic.Failed; total > 0 {
		out.AnswerRate = float64(st.agentic.Answered) / float64(total)
	}
	if st.agentic.Answered > 0 {
		out.CacheHitRate = float64(st.agentic.CacheHits) / float64(st.agentic.Answered)
	}
	st.evaluate = out
	st.evaluateDone = true
	return out, nil
}

// runReport assembles and persists the run report from the stage records
// on disk. It runs for failed runs too, so every run ends with an account
// of what completed, skipped, or failed.
func (r *Runner) runReport(ctx context.Context, run *Run, st *execState, fatal error) error {
	recs, err := r.store.ListStages(ctx, run.ID)
	if err != nil {
		return err
	}

	status := RunCompleted
	if fatal != nil {
		status = RunFailed
	}
	report := Report{
		RunID:             run.ID.String(),
		Status:            status,
		CorpusFingerprint: run.CorpusFingerprint,
		ConfigHash:        run.ConfigHash,
		GeneratedAt:       time.Now().UTC(),
	}
	for _, rec := range recs {
		if rec.Stage == StageReport {
			continue
		}
		sum := StageSummary{
			Stage:      rec.Stage,
			Status:     rec.Status,
			SkipReason: rec.SkipReason,
			Error:      rec.Error,
		}
		if rec.ReuseSourceRunID != nil {
			sum.ReusedFrom = rec.ReuseSourceRunID.String()
		}
		report.Stages = append(report.Stages, sum)
	}
	if st.evaluateDone {
		metrics := st.evaluate
		report.Metrics = &metrics
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	now := time.Now().UTC()
	rec, err := r.store.GetStage(ctx, run.ID, StageReport)
	switch {
	case err == nil:
		if rec.Status == StageCompleted {
			return nil
		}
	case errors.Is(err, ragonometrics.ErrStageNotFound):
		rec = &StageRecord{
			Entity:         ragonometrics.NewEntity(),
			ID:             id.NewStageID(),
			RunID:          run.ID,
			Stage:          StageReport,
			Status:         StageRunning,
			IdempotencyKey: fingerprint.StageKey(string(StageReport), run.ConfigHash, run.ID.String()),
			InputHash:      run.ID.String(),
			StartedAt:      &now,
		}
		if err := r.store.CreateStage(ctx, rec); err != nil {
			return err
		}
	default:
		return err
	}

	rec.Status = StageCompleted
	rec.Output = payload
	if err := r.finishStage(ctx, rec); err != nil {
		return err
	}
	r.emitter.EmitStageCompleted(ctx, rec)
	return nil
}
