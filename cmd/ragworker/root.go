package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/engine"
	"github.com/badbayesian/ragonometrics-sub003/store"
	"github.com/badbayesian/ragonometrics-sub003/store/postgres"
	"github.com/badbayesian/ragonometrics-sub003/store/sqlite"
)

// rootOptions holds global flags shared by all commands.
type rootOptions struct {
	// Database is the SQLite file path. Mutually exclusive with Postgres.
	Database string
	// Postgres is a PostgreSQL connection URL.
	Postgres string
	Verbose  bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragworker",
		Short: "Operate the ragonometrics pipeline",
		Long: `ragworker drives the document analysis pipeline: it migrates the
store schema, enqueues runs, executes them on a worker pool, and
inspects runs, stages, and the dead letter queue.

The store backend is chosen by flag: --db for a SQLite file, or
--postgres for a connection URL. Exactly one is required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))

			if (opts.Database == "") == (opts.Postgres == "") {
				return errors.New("exactly one of --db or --postgres is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Postgres, "postgres", "", "PostgreSQL connection URL")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newWorkCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newDLQCommand(opts))

	return cmd
}

// openStore opens the backend named by the global flags.
func (opts *rootOptions) openStore(ctx context.Context) (store.Store, error) {
	if opts.Postgres != "" {
		return postgres.New(ctx, opts.Postgres)
	}
	return sqlite.Open(opts.Database)
}

// openEngine opens the store and builds an engine over it. Extra options
// are appended after the defaults so callers can override them.
func (opts *rootOptions) openEngine(ctx context.Context, cfg ragonometrics.Config, extra ...engine.Option) (*engine.Engine, store.Store, error) {
	s, err := opts.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	engOpts := append([]engine.Option{
		engine.WithConfig(cfg),
		engine.WithLogger(slog.Default()),
		engine.WithSource(newFSSource()),
	}, extra...)

	eng, err := engine.New(s, engOpts...)
	if err != nil {
		s.Close() //nolint:errcheck // open error takes precedence
		return nil, nil, err
	}
	return eng, s, nil
}
