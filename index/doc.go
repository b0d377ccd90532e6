// Package index records vector index versions and guards retrieval
// against index/metadata drift.
//
// A vector artifact and its metadata record are versioned independently:
// a partial reindex can leave an artifact attached whose embedded index
// identifier no longer matches what the metadata store recorded for the
// corpus. The [Guardrail] compares the two before any similarity search
// and refuses with an index_mismatch error on disagreement. Callers may
// override explicitly, in which case results are annotated unverified
// rather than silently served.
//
// [Builder] makes index construction idempotent: rebuilding with an
// unchanged corpus fingerprint and configuration hash reuses the recorded
// version instead of re-embedding.
package index
