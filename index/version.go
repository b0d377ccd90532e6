package index

import (
	"context"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

// Version is the metadata record for one built vector artifact. Exactly
// one version is current per (corpus fingerprint, config hash) pair:
// recording a new one supersedes the previous.
type Version struct {
	ragonometrics.Entity

	ID id.IndexID `json:"id"`

	CorpusFingerprint string `json:"corpus_fingerprint"`
	ConfigHash        string `json:"config_hash"`

	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	VectorCount    int    `json:"vector_count"`
}

// Store defines the persistence contract for index versions.
type Store interface {
	// PutIndexVersion records a built index version.
	PutIndexVersion(ctx context.Context, v *Version) error

	// GetIndexVersion retrieves a version by ID.
	GetIndexVersion(ctx context.Context, indexID id.IndexID) (*Version, error)

	// LatestIndexVersion returns the most recently recorded version for a
	// corpus fingerprint, or ErrIndexVersionNotFound. An empty configHash
	// matches any configuration.
	LatestIndexVersion(ctx context.Context, corpusFingerprint, configHash string) (*Version, error)

	// ListIndexVersions returns all versions for a corpus, newest first.
	ListIndexVersions(ctx context.Context, corpusFingerprint string) ([]*Version, error)
}
