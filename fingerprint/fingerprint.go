// Package fingerprint computes the deterministic content hashes that anchor
// every idempotency guarantee in the pipeline: corpus fingerprints, document
// and chunk identifiers, configuration hashes, and cache keys.
//
// All functions are pure — no I/O, no randomness, no wall-clock dependency.
// Identical inputs always produce identical outputs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Hashes are domain-separated so a value can never collide across families.
const (
	tagCorpus   = "corpus"
	tagConfig   = "cfg"
	tagDoc      = "doc"
	tagChunk    = "chunk"
	tagAnswer   = "ans"
	tagFallback = "ansfb"
	tagQuestion = "q"
	tagStage    = "stage"
)

// File identifies one member of a document set by name and content hash.
type File struct {
	Name        string
	ContentHash string
}

// digest hashes the tag plus NUL-separated parts and returns lowercase hex.
func digest(tag string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Content returns the hex SHA-256 of raw bytes. Used for file and chunk
// content hashes.
func Content(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Corpus computes a stable fingerprint over a document set. The fingerprint
// is order-independent: permuting the input leaves it unchanged, while
// adding, removing, or modifying any file changes it.
func Corpus(files []File) string {
	pairs := make([]string, len(files))
	for i, f := range files {
		pairs[i] = f.Name + "\x01" + f.ContentHash
	}
	sort.Strings(pairs)
	return digest(tagCorpus, pairs...)
}

// Config computes a stable hash of a fully-resolved configuration value.
// The value is serialized to canonical JSON (struct field order is fixed by
// declaration; map keys are sorted by encoding/json), so the hash is
// independent of where overrides came from.
func Config(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal config: %w", err)
	}
	return digest(tagConfig, string(data)), nil
}

// DocID derives a stable document identifier from a file identity
// (typically path plus content hash), enabling diffable runs.
func DocID(identity string) string {
	return digest(tagDoc, identity)
}

// ChunkID derives a stable chunk identifier from its parent document,
// character offsets, and chunk content hash.
func ChunkID(docID string, start, end int, contentHash string) string {
	return digest(tagChunk, docID, fmt.Sprintf("%d:%d", start, end), contentHash)
}

// StageKey derives the idempotency key for one stage execution from the
// stage name, the run's configuration hash, and the stage's input hash.
// Equal keys mean equal effective work.
func StageKey(stage, configHash, inputHash string) string {
	return digest(tagStage, stage, configHash, inputHash)
}

// NormalizeStrict trims a question and collapses internal whitespace runs
// to single spaces. Case and punctuation are preserved.
func NormalizeStrict(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// NormalizeLoose applies strict normalization, lowercases, and strips
// trailing sentence punctuation. Used for the fallback cache key so
// near-duplicate phrasings of a question share an entry.
func NormalizeLoose(q string) string {
	s := strings.ToLower(NormalizeStrict(q))
	return strings.TrimRight(s, ".?! ")
}

// AnswerKey computes the strict conversational cache key: exact normalized
// question, paper identity, model, retrieval depth, and retrieval context.
func AnswerKey(question, paperID, model string, topK int, contextHash string) string {
	return digest(tagAnswer, NormalizeStrict(question), paperID, model, fmt.Sprintf("%d", topK), contextHash)
}

// FallbackKey computes the loose conversational cache key: loosely
// normalized question, paper, and model — any retrieval context matches.
func FallbackKey(question, paperID, model string) string {
	return digest(tagFallback, NormalizeLoose(question), paperID, model)
}

// QuestionKey computes the structured-question cache key for a fixed
// question identifier against a paper under a given model.
func QuestionKey(paperID, questionID, model string) string {
	return digest(tagQuestion, paperID, questionID, model)
}
