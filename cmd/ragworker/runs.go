package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var (
		status     string
		workstream string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, s, err := opts.openEngine(cmd.Context(), ragonometrics.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			runs, err := eng.ListRuns(cmd.Context(), pipeline.ListOpts{
				Status:     pipeline.RunStatus(status),
				Workstream: workstream,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tWORKSTREAM\tARM\tCONFIG\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Status, run.Workstream, run.VariantArm,
					short(run.ConfigHash), run.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by run status")
	cmd.Flags().StringVar(&workstream, "workstream", "", "filter by lineage workstream")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs to list")

	return cmd
}

// short truncates a hash for table display.
func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
