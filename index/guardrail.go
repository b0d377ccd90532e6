package index

import (
	"context"
	"fmt"
	"log/slog"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
)

// Guardrail validates artifact/metadata agreement before retrieval.
type Guardrail struct {
	store  Store
	engine Engine
	logger *slog.Logger
}

// NewGuardrail creates a guardrail over the version store and engine.
func NewGuardrail(store Store, engine Engine, logger *slog.Logger) *Guardrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardrail{store: store, engine: engine, logger: logger}
}

// Verify compares the attached artifact's embedded index identifier with
// the latest recorded version for the corpus. It returns the matching
// version, or an index_mismatch error when they disagree.
func (g *Guardrail) Verify(ctx context.Context, corpusFingerprint string) (*Version, error) {
	art, err := g.engine.Describe(ctx)
	if err != nil {
		return nil, err
	}
	ver, err := g.store.LatestIndexVersion(ctx, corpusFingerprint, "")
	if err != nil {
		return nil, err
	}
	if art.IndexID != ver.ID.String() {
		return nil, ragonometrics.E(ragonometrics.CodeIndexMismatch,
			fmt.Sprintf("artifact carries index %s, metadata records %s", art.IndexID, ver.ID), nil)
	}
	return ver, nil
}

// SearchResult is a verified (or explicitly overridden) retrieval result.
type SearchResult struct {
	Hits []Hit `json:"hits"`
	// Unverified marks results served past a failed guardrail check via
	// the explicit override flag.
	Unverified bool `json:"unverified,omitempty"`
}

// Search runs a similarity query after verifying index/metadata
// agreement. On a mismatch the query is refused unless allowMismatch is
// set, in which case it proceeds and the result is annotated unverified.
func (g *Guardrail) Search(ctx context.Context, corpusFingerprint, query string, topK int, allowMismatch bool) (*SearchResult, error) {
	_, err := g.Verify(ctx, corpusFingerprint)
	unverified := false
	if err != nil {
		if !ragonometrics.IsIndexMismatch(err) || !allowMismatch {
			return nil, err
		}
		g.logger.Warn("serving retrieval past index mismatch",
			"corpus_fingerprint", corpusFingerprint, "error", err)
		unverified = true
	}

	hits, err := g.engine.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Hits: hits, Unverified: unverified}, nil
}
