package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/config"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		configPath string
		corpus     string
		model      string
		topK       int
		workstream string
		arm        string
		runSync    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enqueue a pipeline run",
		Long: `Resolve a configuration and enqueue a run for the worker pool.
The base configuration comes from --config (YAML) or the built-in
defaults; flags override individual fields before resolution.

Enqueueing the same effective configuration twice while the first run
is still live collapses to the existing run instead of duplicating it.

With --sync the run executes in-process and the command blocks until
the run reaches a terminal state; the report is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				base = loaded
			}

			var overrides []config.Override
			if corpus != "" {
				overrides = append(overrides, config.WithCorpus(corpus))
			}
			if model != "" {
				overrides = append(overrides, config.WithModel(model))
			}
			if cmd.Flags().Changed("top-k") {
				overrides = append(overrides, config.WithTopK(topK))
			}
			if workstream != "" || arm != "" {
				overrides = append(overrides, config.WithLineage(workstream, arm))
			}

			eff, err := config.Resolve(base, overrides...)
			if err != nil {
				return err
			}

			eng, s, err := opts.openEngine(cmd.Context(), ragonometrics.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			if runSync {
				run, err := eng.StartRun(cmd.Context(), eff)
				if err != nil {
					return err
				}
				report, err := eng.Report(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			run, j, err := eng.EnqueueRun(cmd.Context(), eff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s enqueued (job %s, config %s)\n", run.ID, j.ID, run.ConfigHash)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML pipeline configuration")
	cmd.Flags().StringVar(&corpus, "corpus", "", "corpus selector (a directory of .txt/.md files)")
	cmd.Flags().StringVar(&model, "model", "", "completion model override")
	cmd.Flags().IntVar(&topK, "top-k", 0, "retrieval depth override")
	cmd.Flags().StringVar(&workstream, "workstream", "", "lineage workstream label")
	cmd.Flags().StringVar(&arm, "arm", "", "lineage variant arm label")
	cmd.Flags().BoolVar(&runSync, "sync", false, "execute in-process and wait for the terminal state")

	return cmd
}
