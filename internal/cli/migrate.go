package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/tools/migrator"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the status store schema",
		Long: `Applies the embedded status store schema to the configured endpoint.
Used to provision local and testing stores; reconciliation itself never writes
to the store.`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, rootOpts)
			if err != nil {
				return err
			}

			db, err := env.openStore(cmd.Context(), rootOpts.Testing)
			if err != nil {
				return err
			}
			defer db.Close()

			env.logger.Info("running migrations", "driver", db.Driver())
			if err := migrator.RunMigrations(db.DB, db.Driver(), statusstore.Migrations()); err != nil {
				return WrapExitError(ExitFailure, "failed to run migrations", err)
			}

			version, err := migrator.GetCurrentVersion(db.DB)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to get schema version", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
