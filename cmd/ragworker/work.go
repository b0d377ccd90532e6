package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/engine"
)

func newWorkCommand(opts *rootOptions) *cobra.Command {
	cfg := ragonometrics.DefaultConfig()
	var janitorSchedule string

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Start the worker pool",
		Long: `Start claim loops against the configured store and execute queued
jobs until interrupted. Pipeline runs enqueued with "ragworker run" (or
engine.EnqueueRun from an embedding program) are picked up here.

The built-in document source reads plain-text corpora from directories;
stages whose collaborators are not wired (the completion model, the
vector engine) are skipped with a recorded reason rather than failing
the run.

Example:
  ragworker work --db ./rag.db --queues default,runs --concurrency 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var extra []engine.Option
			if janitorSchedule != "" {
				extra = append(extra, engine.WithJanitorSchedule(janitorSchedule))
			}
			eng, s, err := opts.openEngine(ctx, cfg, extra...)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			if err := eng.StartWorkers(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			// The signal context is done; use a fresh one so shutdown
			// gets the full configured grace period.
			return eng.Stop(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent claim loops")
	cmd.Flags().StringSliceVar(&cfg.Queues, "queues", cfg.Queues, "queues to claim from")
	cmd.Flags().DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "sleep between empty claims")
	cmd.Flags().DurationVar(&cfg.Lease, "lease", cfg.Lease, "job ownership window")
	cmd.Flags().DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "lease extension interval")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "per-job attempt budget")
	cmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown bound")
	cmd.Flags().DurationVar(&cfg.Retention, "retention", cfg.Retention, "terminal job and DLQ retention")
	cmd.Flags().StringVar(&janitorSchedule, "janitor-schedule", "", "cron expression for retention sweeps (default hourly)")

	return cmd
}
