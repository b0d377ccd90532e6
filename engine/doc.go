// Package engine wires all ragonometrics subsystems together and
// provides the primary application-level API for starting, enqueuing,
// and inspecting pipeline runs.
//
// The engine package exists to break a fundamental import cycle: the
// root ragonometrics package defines Entity (imported by pipeline, job,
// cache, etc.) and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	eng, err := engine.New(pgStore,
//	    engine.WithConfig(ragonometrics.DefaultConfig()),
//	    engine.WithSource(pdfSource),
//	    engine.WithCompleter(llmClient),
//	    engine.WithVectorEngine(vectorDB),
//	    engine.WithObserver(myObserver),
//	    engine.WithQueueConfig(queue.Config{
//	        Name:      "agentic",
//	        RateLimit: 2,
//	    }),
//	)
//
// # Running Pipelines
//
//	// Synchronous, in-process.
//	run, err := eng.StartRun(ctx, eff)
//
//	// Durable: persists the run and a queued job for the worker pool.
//	run, j, err := eng.EnqueueRun(ctx, eff)
//
//	eng.StartWorkers(ctx)
//	defer eng.Stop(ctx)
//
// # Inspecting Results
//
//	run, _ := eng.GetRun(ctx, runID)
//	raw, _ := eng.StageOutput(ctx, runID, pipeline.StageIngest)
//	report, _ := eng.Report(ctx, runID)
//	cached, missing, _ := eng.Coverage(ctx, paperID, model, questionIDs)
//
// # Options
//
//   - [WithConfig] — worker execution mechanics (concurrency, leases, retention)
//   - [WithObserver] — register a lifecycle observer
//   - [WithMiddleware] — add a middleware to the job execution chain
//   - [WithBackoff] — set the retry backoff strategy
//   - [WithQueueConfig] — configure per-queue rate limits and concurrency
//   - [WithSource], [WithEnricher], [WithEconSource] — stage collaborators
//   - [WithCompleter] — completion client backing the answer cache
//   - [WithVectorEngine] — vector backend for the index stage and guardrail
//   - [WithJanitorSchedule] — enable scheduled retention sweeps
//   - [WithTracerProvider], [WithMeterProvider] — OpenTelemetry providers
package engine
