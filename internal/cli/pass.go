package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/seqtrigger/internal/config"
	"github.com/livinlefevreloca/seqtrigger/internal/detector"
	"github.com/livinlefevreloca/seqtrigger/internal/marker"
	"github.com/livinlefevreloca/seqtrigger/internal/notify"
	"github.com/livinlefevreloca/seqtrigger/internal/proc"
	"github.com/livinlefevreloca/seqtrigger/internal/reconciler"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/internal/submitter"
	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// PassOptions holds flags of the reconciliation pass
type PassOptions struct {
	BreakAfterFirst bool
	DryRun          bool
}

func runPass(cmd *cobra.Command, opts *RootOptions, passOpts *PassOptions) error {
	env, err := loadEnvironment(cmd, opts)
	if err != nil {
		return err
	}
	logger := env.logger
	cfg := env.cfg

	db, err := env.openStore(cmd.Context(), opts.Testing)
	if err != nil {
		return err
	}
	defer db.Close()

	markers := marker.New(cfg.Pipeline.MarkerName, cfg.Reconcile.ExclusiveMarker)
	runner := proc.NewExecRunner(logger)
	rec := reconciler.New(
		reconciler.Options{
			Pipeline:        cfg.Pipeline.Name,
			DaysBack:        cfg.Reconcile.DaysBack,
			DryRun:          passOpts.DryRun,
			BreakAfterFirst: passOpts.BreakAfterFirst,
		},
		db,
		detector.New(markers, logger),
		submitter.New(cfg.SubmitterConfig(), markers, runner, logger),
		buildNotifier(cfg, runner, logger, passOpts.DryRun),
		logger,
	)

	summary, err := rec.RunPass(cmd.Context())
	if err != nil {
		return classifyPassError(logger, err)
	}

	if summary.Failures > 0 {
		logger.Warn("pass completed with failures",
			"failures", summary.Failures,
			"correlation_id", summary.CorrelationID)
	}
	return nil
}

// buildNotifier assembles the configured dispatchers. Dry runs only log.
func buildNotifier(cfg *config.Config, runner proc.Runner, logger *slog.Logger, dryRun bool) notify.Dispatcher {
	dispatchers := notify.Multi{notify.NewLogNotifier(logger)}
	if dryRun {
		return dispatchers
	}

	if cfg.Notify.Mail.Enabled {
		dispatchers = append(dispatchers, notify.NewMailNotifier(cfg.MailNotifierConfig(), runner, logger))
	}
	if cfg.Notify.Webhook.Enabled {
		dispatchers = append(dispatchers, notify.NewWebhookNotifier(cfg.WebhookNotifierConfig(), logger))
	}
	return dispatchers
}

func classifyPassError(logger *slog.Logger, err error) error {
	var missing *submitter.MissingExecutableError

	switch {
	case statusstore.IsConnectionError(err):
		logger.Error("status store unreachable", "error", err)
		return WrapExitError(ExitFailure, "status store unreachable", err)
	case errors.As(err, &missing):
		logger.Error("executable missing", "role", missing.Role, "path", missing.Path)
		return WrapExitError(ExitFailure, "missing executable", err)
	case errors.Is(err, window.ErrInvalidDaysBack):
		return WrapExitError(ExitUsage, "invalid window", err)
	default:
		logger.Error("pass aborted", "error", err)
		return WrapExitError(ExitFailure, "pass aborted", err)
	}
}
