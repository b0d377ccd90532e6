// Package cache provides content-addressed get-or-compute memoization for
// the two expensive call families: conversational answers and the
// structured question set.
//
// Both families share one mechanism. A lookup tries the strict key first
// (exact normalized question, exact retrieval context); the conversational
// family falls back to a loose key (loosely normalized question, any
// context) and flags the hit as fallback provenance. A miss computes and
// writes through with insert-or-ignore on the strict key: in-process
// races collapse via singleflight, cross-process races via the store's
// unique key constraint, and the loser of either race reads back the
// winner's row. Payloads are a pure function of the key's inputs, so a
// same-key write with a different payload indicates a normalization bug
// and is logged as a warning while the existing row stands.
package cache
