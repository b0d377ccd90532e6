package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

func newDLQCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay the dead letter queue",
	}
	cmd.AddCommand(newDLQListCommand(opts))
	cmd.AddCommand(newDLQReplayCommand(opts))
	return cmd
}

func newDLQListCommand(opts *rootOptions) *cobra.Command {
	var (
		queue string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letter entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, s, err := opts.openEngine(cmd.Context(), ragonometrics.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			entries, err := eng.DLQService().DLQStore().ListDLQ(cmd.Context(), dlq.ListOpts{
				Queue: queue,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tJOB\tQUEUE\tATTEMPTS\tFAILED\tERROR")
			for _, e := range entries {
				replayed := ""
				if e.ReplayedAt != nil {
					replayed = " (replayed)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s%s\t%s\n",
					e.ID, e.JobName, e.Queue, e.Attempts, e.MaxAttempts,
					e.FailedAt.Format(time.RFC3339), replayed, e.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "filter by queue name")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries to list")

	return cmd
}

func newDLQReplayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <entry-id>",
		Short: "Re-enqueue a dead letter entry as a fresh job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := id.ParseDLQID(args[0])
			if err != nil {
				return err
			}

			eng, s, err := opts.openEngine(cmd.Context(), ragonometrics.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			j, err := eng.DLQService().Replay(cmd.Context(), entryID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entry %s replayed as job %s on queue %s\n", entryID, j.ID, j.Queue)
			return nil
		},
	}
}
