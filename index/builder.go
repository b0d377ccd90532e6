package index

import (
	"context"
	"errors"
	"log/slog"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Builder builds vector indexes idempotently and records their versions.
// It satisfies the stage runner's indexer contract.
type Builder struct {
	store          Store
	engine         Engine
	embeddingModel string
	logger         *slog.Logger
}

// NewBuilder creates a builder for the given embedding model.
func NewBuilder(store Store, engine Engine, embeddingModel string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, engine: engine, embeddingModel: embeddingModel, logger: logger}
}

// BuildIndex embeds the chunks and records the resulting version. When a
// version is already recorded for the same corpus fingerprint and config
// hash, the build is skipped and the recorded version returned: an
// unchanged corpus never re-embeds.
func (b *Builder) BuildIndex(ctx context.Context, corpusFingerprint, configHash string, chunks []pipeline.Chunk) (pipeline.IndexSummary, error) {
	if v, err := b.store.LatestIndexVersion(ctx, corpusFingerprint, configHash); err == nil {
		b.logger.Info("index build skipped, version already recorded",
			"index_id", v.ID, "corpus_fingerprint", corpusFingerprint)
		return summarize(v), nil
	} else if !errors.Is(err, ragonometrics.ErrIndexVersionNotFound) {
		return pipeline.IndexSummary{}, err
	}

	indexID := id.NewIndexID()
	art, err := b.engine.Build(ctx, indexID.String(), b.embeddingModel, chunks)
	if err != nil {
		return pipeline.IndexSummary{}, err
	}

	v := &Version{
		Entity:            ragonometrics.NewEntity(),
		ID:                indexID,
		CorpusFingerprint: corpusFingerprint,
		ConfigHash:        configHash,
		EmbeddingModel:    b.embeddingModel,
		Dimensions:        art.Dimensions,
		VectorCount:       art.VectorCount,
	}
	if err := b.store.PutIndexVersion(ctx, v); err != nil {
		return pipeline.IndexSummary{}, err
	}
	b.logger.Info("index version recorded",
		"index_id", v.ID, "vectors", v.VectorCount, "dims", v.Dimensions)
	return summarize(v), nil
}

func summarize(v *Version) pipeline.IndexSummary {
	return pipeline.IndexSummary{
		IndexID:      v.ID.String(),
		Dimensions:   v.Dimensions,
		VectorCount:  v.VectorCount,
		ConfigHash:   v.ConfigHash,
		CorpusDigest: v.CorpusFingerprint,
	}
}
