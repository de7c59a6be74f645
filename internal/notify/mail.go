package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/livinlefevreloca/seqtrigger/internal/proc"
)

// MailConfig configures delivery through a mail(1) compatible executable
type MailConfig struct {
	Command       string
	Recipients    []string
	SubjectPrefix string
}

// MailNotifier pipes the message body into `<command> -s <subject> <recipients...>`
type MailNotifier struct {
	cfg    MailConfig
	runner proc.Runner
	logger *slog.Logger
}

// NewMailNotifier creates a MailNotifier
func NewMailNotifier(cfg MailConfig, runner proc.Runner, logger *slog.Logger) *MailNotifier {
	return &MailNotifier{cfg: cfg, runner: runner, logger: logger}
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) {
	args := append([]string{"-s", n.Subject(m.cfg.SubjectPrefix)}, m.cfg.Recipients...)
	result := m.runner.Run(ctx, proc.Command{
		Path:  m.cfg.Command,
		Args:  args,
		Stdin: strings.NewReader(n.Body()),
	})

	if !result.OK() {
		m.logger.Error("failed to send notification mail",
			"run_id", n.RunID,
			"correlation_id", n.CorrelationID,
			"kind", result.Kind.String(),
			"exit_code", result.ExitCode,
			"output", strings.TrimSpace(string(result.Output)))
		return
	}
	m.logger.Debug("notification mail sent", "run_id", n.RunID, "recipients", len(m.cfg.Recipients))
}
