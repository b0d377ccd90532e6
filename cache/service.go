package cache

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/fingerprint"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Completion is the outcome of one expensive completion call.
type Completion struct {
	// Text is the answer text.
	Text string
	// ContextHash identifies the retrieval context the answer was
	// grounded on.
	ContextHash string
}

// Completer is the expensive call the cache memoizes: retrieval plus one
// completion against the model.
type Completer interface {
	Complete(ctx context.Context, paperID, question, model string, topK int) (Completion, error)
}

// Result is a lookup or get-or-compute outcome with cache provenance.
type Result struct {
	Entry *Entry
	// CacheHit is true when no completion call was made for this result.
	CacheHit bool
	// Fallback is true when the hit came from the loose key rather than
	// an exact context match.
	Fallback bool
}

// Service is the get-or-compute front over the cache store. One Service
// per process: the singleflight group collapses in-process duplicate
// computations, the store's key constraint collapses cross-process ones.
type Service struct {
	store     Store
	completer Completer
	group     singleflight.Group
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a cache service. The completer may be nil for
// lookup-only use; get-or-compute calls then fail on miss with
// dependency_unavailable.
func NewService(store Store, completer Completer, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupKey retrieves the entry for an exact strict key, or ErrCacheMiss.
func (s *Service) LookupKey(ctx context.Context, key string) (*Entry, error) {
	return s.store.GetCache(ctx, key)
}

// Lookup resolves a conversational question against the cache without
// computing: strict key first, then the fallback key. ErrCacheMiss when
// neither is present.
func (s *Service) Lookup(ctx context.Context, question, paperID, model string, topK int, contextHash string) (*Result, error) {
	strict := fingerprint.AnswerKey(question, paperID, model, topK, contextHash)
	if e, err := s.store.GetCache(ctx, strict); err == nil {
		return &Result{Entry: e, CacheHit: true}, nil
	} else if !errors.Is(err, ragonometrics.ErrCacheMiss) {
		return nil, err
	}

	loose := fingerprint.FallbackKey(question, paperID, model)
	if e, err := s.store.GetCacheByFallback(ctx, loose); err == nil {
		return &Result{Entry: e, CacheHit: true, Fallback: true}, nil
	} else if !errors.Is(err, ragonometrics.ErrCacheMiss) {
		return nil, err
	}
	return nil, ragonometrics.ErrCacheMiss
}

// Ask resolves a conversational question, computing and writing through
// on a miss. Two concurrent identical asks cost exactly one completion.
func (s *Service) Ask(ctx context.Context, question, paperID, model string, topK int, contextHash string) (*Result, error) {
	res, err := s.Lookup(ctx, question, paperID, model, topK, contextHash)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ragonometrics.ErrCacheMiss) {
		return nil, err
	}

	strict := fingerprint.AnswerKey(question, paperID, model, topK, contextHash)
	entry := &Entry{
		Key:         strict,
		FallbackKey: fingerprint.FallbackKey(question, paperID, model),
		PaperID:     paperID,
		Question:    question,
		Model:       model,
		TopK:        topK,
		ContextHash: contextHash,
	}
	return s.compute(ctx, entry)
}

// AnswerQuestion resolves one structured question, computing on a miss.
// Structured entries have no fallback tier: the question identifier is
// already canonical.
func (s *Service) AnswerQuestion(ctx context.Context, paperID, questionID, question, model string, topK int) (*Result, error) {
	key := fingerprint.QuestionKey(paperID, questionID, model)
	if e, err := s.store.GetCache(ctx, key); err == nil {
		return &Result{Entry: e, CacheHit: true}, nil
	} else if !errors.Is(err, ragonometrics.ErrCacheMiss) {
		return nil, err
	}

	entry := &Entry{
		Key:        key,
		PaperID:    paperID,
		QuestionID: questionID,
		Question:   question,
		Model:      model,
		TopK:       topK,
	}
	return s.compute(ctx, entry)
}

// Answer implements the stage runner's answerer contract over the
// structured cache.
func (s *Service) Answer(ctx context.Context, paperID, questionID, question, model string, topK int) (pipeline.Answer, error) {
	res, err := s.AnswerQuestion(ctx, paperID, questionID, question, model, topK)
	if err != nil {
		return pipeline.Answer{}, err
	}
	return pipeline.Answer{
		QuestionID: questionID,
		Question:   question,
		Text:       res.Entry.Answer,
		Model:      model,
		CacheHit:   res.CacheHit,
		Fallback:   res.Fallback,
	}, nil
}

// compute runs the expensive call under singleflight on the strict key
// and writes through with insert-or-ignore.
func (s *Service) compute(ctx context.Context, entry *Entry) (*Result, error) {
	// The closure runs in exactly one caller's frame; computed stays
	// false for every flight waiter, which therefore reports a hit.
	computed := false
	v, err, _ := s.group.Do(entry.Key, func() (any, error) {
		// Another process may have won while we queued.
		if e, err := s.store.GetCache(ctx, entry.Key); err == nil {
			return e, nil
		} else if !errors.Is(err, ragonometrics.ErrCacheMiss) {
			return nil, err
		}

		if s.completer == nil {
			return nil, ragonometrics.E(ragonometrics.CodeUnavailable, "no completer configured", nil)
		}
		computed = true
		comp, err := s.completer.Complete(ctx, entry.PaperID, entry.Question, entry.Model, entry.TopK)
		if err != nil {
			return nil, err
		}

		e := *entry
		e.Entity = ragonometrics.NewEntity()
		e.ID = id.NewCacheID()
		e.Answer = comp.Text
		if e.ContextHash == "" {
			e.ContextHash = comp.ContextHash
		}

		if err := s.store.PutCache(ctx, &e); err != nil {
			if !errors.Is(err, ragonometrics.ErrCacheExists) {
				return nil, err
			}
			// Lost the cross-process race: the winner's row stands.
			won, gerr := s.store.GetCache(ctx, e.Key)
			if gerr != nil {
				return nil, gerr
			}
			if won.Answer != e.Answer {
				// Same key, different payload: normalization bug upstream.
				s.logger.Warn("divergent payload for cache key",
					"key", e.Key, "paper_id", e.PaperID, "model", e.Model)
			}
			return won, nil
		}
		return &e, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Entry: v.(*Entry), CacheHit: !computed}, nil
}

// Coverage reports, for one paper and model, which of the given question
// identifiers are already cached and which are missing. This supports
// generating only what's missing without re-deriving cached answers.
func (s *Service) Coverage(ctx context.Context, paperID, model string, questionIDs []string) (cached, missing []string, err error) {
	entries, err := s.store.ListCacheByPaper(ctx, paperID)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.QuestionID != "" && e.Model == model {
			have[e.QuestionID] = struct{}{}
		}
	}
	for _, qid := range questionIDs {
		if _, ok := have[qid]; ok {
			cached = append(cached, qid)
		} else {
			missing = append(missing, qid)
		}
	}
	return cached, missing, nil
}
