package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// ValidFormats defines the allowed records output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// RecordsOptions holds flags of the records command
type RecordsOptions struct {
	Status string
	MuxID  string
	RunID  string
	Format string
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List status store records in the look-back window",
		Long: `Lists run records from the status store, oldest first. Filters combine:
a run is listed when it matches all of them. The store is never modified.`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with an analysis in this status (STARTED|SUCCESS|FAILED)")
	cmd.Flags().StringVar(&opts.MuxID, "mux", "", "only runs containing this mux id")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only runs whose id starts with this prefix")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	return cmd
}

func runRecords(cmd *cobra.Command, rootOpts *RootOptions, opts *RecordsOptions) error {
	if !isValidFormat(opts.Format) {
		return WrapExitError(ExitUsage, "invalid arguments",
			fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}

	filter := statusstore.Filter{MuxID: opts.MuxID, RunIDPrefix: opts.RunID}
	if opts.Status != "" {
		status, err := statusstore.ParseAnalysisStatus(opts.Status)
		if err != nil {
			return WrapExitError(ExitUsage, "invalid arguments", err)
		}
		filter.Status = status
	}

	env, err := loadEnvironment(cmd, rootOpts)
	if err != nil {
		return err
	}

	w, err := window.Select(time.Now(), env.cfg.Reconcile.DaysBack)
	if err != nil {
		return WrapExitError(ExitUsage, "invalid window", err)
	}
	filter.Window = w

	db, err := env.openStore(cmd.Context(), rootOpts.Testing)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Query(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitFailure, "status store unreachable", err)
	}
	for _, q := range result.Quarantined {
		env.logger.Warn("skipping malformed run record", "run_id", q.RunID, "reason", q.Reason)
	}

	return renderRecords(cmd.OutOrStdout(), opts.Format, result.Runs)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
