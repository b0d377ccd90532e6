package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run and its stage records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := id.ParseRunID(args[0])
			if err != nil {
				return err
			}

			eng, s, err := opts.openEngine(cmd.Context(), ragonometrics.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // nothing useful to do on close failure

			report, err := eng.Report(cmd.Context(), runID)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s (config %s)\n", report.RunID, report.Status, short(report.ConfigHash))
			if report.CorpusFingerprint != "" {
				fmt.Fprintf(out, "corpus %s\n", short(report.CorpusFingerprint))
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSTATUS\tDETAIL")
			for _, st := range report.Stages {
				detail := st.Error
				if detail == "" {
					detail = st.SkipReason
				}
				if detail == "" && st.ReusedFrom != "" {
					detail = "reused from " + st.ReusedFrom
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", st.Stage, st.Status, detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")

	return cmd
}
