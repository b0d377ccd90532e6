// Package config defines the typed pipeline configuration and the explicit
// override-resolution step that produces the effective configuration a run
// is hashed and executed against.
//
// Resolution happens exactly once, before a run is created. Nothing in the
// pipeline reads configuration lazily mid-stage.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/badbayesian/ragonometrics-sub003/fingerprint"
)

// Pipeline is the full configuration for one run. Field order is load-bearing
// for the configuration hash: do not reorder fields.
type Pipeline struct {
	Corpus  Corpus  `json:"corpus" yaml:"corpus"`
	Model   Model   `json:"model" yaml:"model"`
	Prep    Prep    `json:"prep" yaml:"prep"`
	Econ    Toggle  `json:"econ" yaml:"econ"`
	Agentic Agentic `json:"agentic" yaml:"agentic"`
	Index   Toggle  `json:"index" yaml:"index"`

	// Lineage groups related runs. Excluded from the configuration hash
	// and snapshot (json:"-"): arms of one experiment share stage work,
	// and lineage is recorded on the Run itself.
	Workstream string `json:"-" yaml:"workstream"`
	VariantArm string `json:"-" yaml:"variant_arm"`
}

// Corpus selects the input document set.
type Corpus struct {
	// Selector names the corpus to list from the document source.
	Selector string `json:"selector" yaml:"selector"`
	// Include optionally restricts the set to matching file names.
	Include []string `json:"include,omitempty" yaml:"include"`
}

// Model configures the completion and embedding models.
type Model struct {
	Completion string `json:"completion" yaml:"completion"`
	Embedding  string `json:"embedding" yaml:"embedding"`
	TopK       int    `json:"top_k" yaml:"top_k"`
}

// Prep configures input validation.
type Prep struct {
	// FailFast terminates the run if the input set is empty or unreadable.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`
}

// Toggle enables or disables an optional stage.
type Toggle struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Agentic configures the fan-out stage that answers sub-questions and the
// structured question set through the cache layer.
type Agentic struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Concurrency bounds the fan-out pool. Defaults to 8.
	Concurrency int        `json:"concurrency" yaml:"concurrency"`
	Questions   []Question `json:"questions,omitempty" yaml:"questions"`
}

// Question is one entry of the fixed structured question set.
type Question struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Default returns the baseline configuration before file and caller
// overrides are applied.
func Default() Pipeline {
	return Pipeline{
		Model:   Model{Completion: "default-completion", Embedding: "default-embedding", TopK: 8},
		Prep:    Prep{FailFast: true},
		Agentic: Agentic{Enabled: true, Concurrency: 8},
		Index:   Toggle{Enabled: true},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (p Pipeline) Validate() error {
	if p.Corpus.Selector == "" {
		return fmt.Errorf("config: corpus selector is required")
	}
	if p.Model.Completion == "" {
		return fmt.Errorf("config: completion model is required")
	}
	if p.Model.TopK <= 0 {
		return fmt.Errorf("config: top_k must be positive, got %d", p.Model.TopK)
	}
	if p.Agentic.Enabled && p.Agentic.Concurrency <= 0 {
		return fmt.Errorf("config: agentic concurrency must be positive, got %d", p.Agentic.Concurrency)
	}
	seen := make(map[string]struct{}, len(p.Agentic.Questions))
	for _, q := range p.Agentic.Questions {
		if q.ID == "" {
			return fmt.Errorf("config: question with empty id")
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("config: duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// Effective is a resolved, validated, immutable configuration plus its
// stable hash and canonical snapshot. The hash is fixed at creation and is
// what stage idempotency keys are derived from.
type Effective struct {
	Pipeline Pipeline
	Hash     string
	Snapshot []byte
}

// Resolve applies overrides on top of base, validates the result, and
// computes the configuration hash over the canonical JSON form. Lineage
// fields (workstream, variant arm) are excluded from the hash so arms of
// the same experiment can share cached stage work.
func Resolve(base Pipeline, overrides ...Override) (Effective, error) {
	resolved := base
	for _, ov := range overrides {
		ov(&resolved)
	}

	if err := resolved.Validate(); err != nil {
		return Effective{}, err
	}

	hash, err := fingerprint.Config(resolved)
	if err != nil {
		return Effective{}, fmt.Errorf("config: hash: %w", err)
	}

	snapshot, err := json.Marshal(resolved)
	if err != nil {
		return Effective{}, fmt.Errorf("config: snapshot: %w", err)
	}

	return Effective{Pipeline: resolved, Hash: hash, Snapshot: snapshot}, nil
}

// Override mutates a configuration during resolution. Overrides are the
// only sanctioned way to vary a configuration per call site.
type Override func(*Pipeline)

// WithCorpus overrides the corpus selector.
func WithCorpus(selector string) Override {
	return func(p *Pipeline) { p.Corpus.Selector = selector }
}

// WithModel overrides the completion model.
func WithModel(model string) Override {
	return func(p *Pipeline) { p.Model.Completion = model }
}

// WithTopK overrides the retrieval depth.
func WithTopK(k int) Override {
	return func(p *Pipeline) { p.Model.TopK = k }
}

// WithQuestions overrides the structured question set.
func WithQuestions(qs []Question) Override {
	return func(p *Pipeline) { p.Agentic.Questions = qs }
}

// WithLineage sets workstream grouping and variant arm labels.
func WithLineage(workstream, arm string) Override {
	return func(p *Pipeline) {
		p.Workstream = workstream
		p.VariantArm = arm
	}
}

// WithStageToggles overrides the optional stage switches.
func WithStageToggles(econ, agentic, index bool) Override {
	return func(p *Pipeline) {
		p.Econ.Enabled = econ
		p.Agentic.Enabled = agentic
		p.Index.Enabled = index
	}
}
