package pipeline

import "context"

// Collaborator contracts consumed by the stage runner. Real implementations
// (PDF extraction, bibliographic APIs, economic data fetchers, the language
// model, the vector engine) live outside the core; the runner only sees
// these interfaces. Implementations classify their failures with the root
// error codes: transient errors are retried at the call site, unavailable
// dependencies downgrade optional stages to skips.

// Document identifies one member of the input corpus.
type Document struct {
	// Identity is a stable identifier for the file (path or handle).
	Identity string `json:"identity"`
	// Name is the display file name.
	Name string `json:"name"`
	// ContentHash is the hex SHA-256 of the raw bytes.
	ContentHash string `json:"content_hash"`
}

// Page is one extracted page of text.
type Page struct {
	PageNo int    `json:"page_no"`
	Text   string `json:"text"`
}

// Extraction is the text content pulled from one document.
type Extraction struct {
	Pages     []Page `json:"pages"`
	WordCount int    `json:"word_count"`
}

// Source lists and extracts the input document set.
type Source interface {
	// ListDocuments resolves a corpus selector to its member documents.
	ListDocuments(ctx context.Context, selector string) ([]Document, error)
	// ExtractText extracts page text from one document.
	ExtractText(ctx context.Context, doc Document) (Extraction, error)
}

// Metadata is a bibliographic record for one paper.
type Metadata struct {
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	JELCodes []string `json:"jel_codes,omitempty"`
}

// Enricher fetches bibliographic metadata by document identity. Fetches
// must be idempotent and cacheable by identity.
type Enricher interface {
	Fetch(ctx context.Context, identity string) (Metadata, error)
}

// EconSeries is a named economic indicator series attached to a paper.
type EconSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values,omitempty"`
	Units  string    `json:"units,omitempty"`
}

// EconSource fetches economic context data for a paper.
type EconSource interface {
	Fetch(ctx context.Context, identity string) ([]EconSeries, error)
}

// Answer is one answered sub-question, with cache provenance.
type Answer struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Text       string `json:"text,omitempty"`
	Model      string `json:"model,omitempty"`
	CacheHit   bool   `json:"cache_hit,omitempty"`
	Fallback   bool   `json:"fallback,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Answerer answers one structured question against one paper. The cache
// layer satisfies this interface, so repeated questions cost one completion.
type Answerer interface {
	Answer(ctx context.Context, paperID, questionID, question, model string, topK int) (Answer, error)
}

// Chunk is one indexable span of an extracted document.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	DocID       string `json:"doc_id"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	ContentHash string `json:"content_hash"`
	Text        string `json:"text,omitempty"`
}

// IndexSummary describes a built (or reused) vector artifact.
type IndexSummary struct {
	IndexID      string `json:"index_id"`
	Dimensions   int    `json:"dimensions"`
	VectorCount  int    `json:"vector_count"`
	ConfigHash   string `json:"config_hash"`
	CorpusDigest string `json:"corpus_fingerprint"`
}

// Indexer builds a vector index over the corpus chunks and records its
// version. Unreachable metadata storage surfaces as a dependency_unavailable
// error, which the runner downgrades to a stage skip.
type Indexer interface {
	BuildIndex(ctx context.Context, corpusFingerprint, configHash string, chunks []Chunk) (IndexSummary, error)
}
