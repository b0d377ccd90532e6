// Package ragonometrics provides the orchestration and caching core for a
// retrieval-augmented research pipeline over economics papers. It executes a
// fixed sequence of expensive, fallible stages (ingestion, enrichment,
// synthesis, indexing, evaluation, reporting) exactly once per unique input,
// persists every stage transition durably, and reuses prior results for
// repeated or concurrent requests instead of recomputing them.
//
// The core is a library, not a service. Configure a store, build an engine,
// and start runs either synchronously or through the durable job queue:
//
//	eng, err := engine.New(memory.New())
//	run, err := eng.StartRun(ctx, cfg)      // blocks until the run finishes
//	j, err := eng.EnqueueRun(ctx, cfg)      // a worker claims it later
//
// # Architecture
//
// Each subsystem (pipeline, job, cache, index, dlq) defines its own store
// interface; a single backend implements all of them. Backends: memory,
// sqlite, postgres. The store is the only shared mutable resource — all
// cross-worker coordination happens through natural-key uniqueness
// constraints, upserts, and one conditional-update claim primitive.
//
// All entity IDs are TypeIDs — type-prefixed, K-sortable, UUIDv7-based.
package ragonometrics
