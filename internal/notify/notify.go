package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Notification describes the outcome of a downstream trigger attempt
type Notification struct {
	Pipeline      string `json:"pipeline"`
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlation_id"`
	ContextPath   string `json:"context_path"`
	RunID         string `json:"run_id"`
	Reason        string `json:"reason,omitempty"`
}

// Status returns SUCCESS or FAILED
func (n Notification) Status() string {
	if n.Success {
		return "SUCCESS"
	}
	return "FAILED"
}

// Subject returns a one-line summary suitable for a mail subject
func (n Notification) Subject(prefix string) string {
	return fmt.Sprintf("%s%s: %s for run %s", prefix, n.Pipeline, n.Status(), n.RunID)
}

// Body returns the plain-text message body
func (n Notification) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline: %s\n", n.Pipeline)
	fmt.Fprintf(&b, "Run: %s\n", n.RunID)
	fmt.Fprintf(&b, "Status: %s\n", n.Status())
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
	}
	fmt.Fprintf(&b, "Path: %s\n", n.ContextPath)
	fmt.Fprintf(&b, "Correlation ID: %s\n", n.CorrelationID)
	return b.String()
}

// Dispatcher delivers notifications. Delivery is best effort: implementations
// log failures and never return them.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification)
}

// Multi fans a notification out to every dispatcher in order
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, d := range m {
		d.Notify(ctx, n)
	}
}

// LogNotifier records notifications in the log instead of delivering them
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelWarn
	if n.Success {
		level = slog.LevelInfo
	}
	l.logger.Log(ctx, level, "notification",
		"pipeline", n.Pipeline,
		"status", n.Status(),
		"run_id", n.RunID,
		"context_path", n.ContextPath,
		"reason", n.Reason,
		"correlation_id", n.CorrelationID)
}
