package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/seqtrigger/internal/config"
	"github.com/livinlefevreloca/seqtrigger/internal/logging"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Testing    bool
	DaysBack   int
	Verbose    int
	Quiet      int
}

// NewRootCommand creates the seqtrigger command. Without a subcommand it runs
// one reconciliation pass.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	passOpts := &PassOptions{}

	cmd := &cobra.Command{
		Use:   "seqtrigger",
		Short: "Trigger downstream analysis for completed sequencing runs",
		Long: `Polls the status store for sequencing runs completed within the look-back
window and triggers the downstream mapping pipeline exactly once per analysis.
Meant to be invoked periodically, e.g. from cron.`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, opts, passOpts)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file (TOML)")
	cmd.PersistentFlags().BoolVarP(&opts.Testing, "testing", "t", false, "use the testing status store endpoint")
	cmd.PersistentFlags().IntVarP(&opts.DaysBack, "win", "w", 0, "look-back window in days (default from config)")
	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "increase verbosity (repeatable)")
	cmd.PersistentFlags().CountVarP(&opts.Quiet, "quiet", "q", "decrease verbosity (repeatable)")

	// Pass flags
	cmd.Flags().BoolVarP(&passOpts.BreakAfterFirst, "break-after-first", "1", false, "stop after the first run in the window has been evaluated")
	cmd.Flags().BoolVarP(&passOpts.DryRun, "dry-run", "n", false, "generate configs but submit nothing and leave no markers")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid arguments", err)
	})

	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return WrapExitError(ExitUsage, "invalid arguments", err)
	}
	return nil
}

// environment is what every command needs before touching the store
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadEnvironment loads and validates configuration, applies flag overrides
// and builds the logger
func loadEnvironment(cmd *cobra.Command, opts *RootOptions) (*environment, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "failed to load configuration", err)
	}

	if cmd.Flags().Changed("win") {
		cfg.Reconcile.DaysBack = opts.DaysBack
	}

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitUsage, "invalid configuration", err)
	}

	logger, err := logging.New(logging.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Verbosity: opts.Verbose - opts.Quiet,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitUsage, "invalid logging configuration", err)
	}

	return &environment{cfg: cfg, logger: logger}, nil
}

// openStore connects to the configured status store endpoint
func (env *environment) openStore(ctx context.Context, testing bool) (*statusstore.DB, error) {
	env.logger.Debug("connecting to status store",
		"driver", env.cfg.Store.Driver,
		"testing", testing)

	db, err := statusstore.OpenWithConfig(ctx, env.cfg.Store, testing)
	if err != nil {
		env.logger.Error("failed to connect to status store", "error", err)
		return nil, WrapExitError(ExitFailure, "status store unreachable", err)
	}
	return db, nil
}
