package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/id"
)

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending or running run",
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

			if err := eng.CancelRun(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s cancelled\n", runID)
			return nil
		},
	}
}
