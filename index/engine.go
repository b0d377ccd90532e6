package index

import (
	"context"

	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Artifact describes the vector artifact an engine currently has
// attached. IndexID is the identifier the artifact itself carries; the
// guardrail compares it against the metadata store's recorded version.
type Artifact struct {
	IndexID     string `json:"index_id"`
	Dimensions  int    `json:"dimensions"`
	VectorCount int    `json:"vector_count"`
}

// Hit is one similarity search result.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text,omitempty"`
}

// Engine abstracts the vector store. Implementations must stamp the given
// index identifier into the built artifact so Describe can report it
// back. An unreachable engine surfaces dependency_unavailable errors.
type Engine interface {
	// Build embeds the chunks under the given model and attaches the
	// resulting artifact with indexID embedded.
	Build(ctx context.Context, indexID, embeddingModel string, chunks []pipeline.Chunk) (Artifact, error)

	// Describe reports the currently attached artifact.
	Describe(ctx context.Context) (Artifact, error)

	// Search runs a similarity query against the attached artifact.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}
