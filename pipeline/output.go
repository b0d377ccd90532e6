package pipeline

import "time"

// Typed stage output payloads. Stage records persist these as canonical
// JSON so they survive any store backend and feed the report stage.

// PrepFile is one validated member of the input set.
type PrepFile struct {
	Document
	DocID string `json:"doc_id"`
}

// PrepOutput is the prep stage payload.
type PrepOutput struct {
	CorpusFingerprint string     `json:"corpus_fingerprint"`
	Files             []PrepFile `json:"files"`
	FileCount         int        `json:"file_count"`
}

// IngestedDoc is one extracted document with its chunks.
type IngestedDoc struct {
	DocID     string  `json:"doc_id"`
	Identity  string  `json:"identity"`
	Name      string  `json:"name"`
	PageCount int     `json:"page_count"`
	WordCount int     `json:"word_count"`
	Chunks    []Chunk `json:"chunks"`
}

// IngestOutput is the ingest stage payload.
type IngestOutput struct {
	Documents  []IngestedDoc `json:"documents"`
	ChunkCount int           `json:"chunk_count"`
	WordCount  int           `json:"word_count"`
}

// EnrichOutput is the enrich stage payload. Failures map doc id to the
// classified error text for identities the enricher could not resolve.
type EnrichOutput struct {
	Metadata map[string]Metadata `json:"metadata"`
	Failures map[string]string   `json:"failures,omitempty"`
}

// EconOutput is the econ stage payload.
type EconOutput struct {
	Series   map[string][]EconSeries `json:"series"`
	Failures map[string]string       `json:"failures,omitempty"`
}

// AgenticOutput is the agentic stage payload. Per-item failures are
// recorded inline on the answers; the stage itself fails only when every
// item failed.
type AgenticOutput struct {
	Answers   []Answer `json:"answers"`
	Answered  int      `json:"answered"`
	Failed    int      `json:"failed"`
	CacheHits int      `json:"cache_hits"`
}

// IndexOutput is the index stage payload.
type IndexOutput struct {
	IndexSummary
}

// EvaluateOutput aggregates metrics over the captured stage outputs.
type EvaluateOutput struct {
	Documents      int     `json:"documents"`
	Chunks         int     `json:"chunks"`
	Words          int     `json:"words"`
	EnrichCoverage float64 `json:"enrich_coverage"`
	AnswerRate     float64 `json:"answer_rate"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
}

// StageSummary is one line of the run report.
type StageSummary struct {
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	SkipReason string      `json:"reason,omitempty"`
	Error      string      `json:"error,omitempty"`
	ReusedFrom string      `json:"reused_from,omitempty"`
}

// Report is the report stage payload: a complete account of what
// completed, was skipped (with reason), or failed — produced for failed
// runs too, so callers always get partial results over an opaque error.
type Report struct {
	RunID             string          `json:"run_id"`
	Status            RunStatus       `json:"status"`
	CorpusFingerprint string          `json:"corpus_fingerprint,omitempty"`
	ConfigHash        string          `json:"config_hash"`
	Stages            []StageSummary  `json:"stages"`
	Metrics           *EvaluateOutput `json:"metrics,omitempty"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
