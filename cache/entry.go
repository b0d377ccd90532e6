package cache

import (
	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

// Entry is one memoized answer. The strict key is unique; the fallback
// key, when set, indexes near-duplicate questions for the same paper and
// model regardless of retrieval context.
type Entry struct {
	ragonometrics.Entity

	ID  id.CacheID `json:"id"`
	Key string     `json:"key"`

	// FallbackKey is set for conversational entries only. Structured
	// question entries are keyed by question ID and need no fallback.
	FallbackKey string `json:"fallback_key,omitempty"`

	PaperID string `json:"paper_id"`

	// QuestionID identifies the structured question for that family;
	// empty for conversational entries.
	QuestionID string `json:"question_id,omitempty"`

	Question    string `json:"question"`
	Model       string `json:"model"`
	TopK        int    `json:"top_k,omitempty"`
	ContextHash string `json:"context_hash,omitempty"`

	// Answer is the memoized payload.
	Answer string `json:"answer"`
}
