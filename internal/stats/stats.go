package stats

import (
	"log/slog"
	"sort"
	"time"

	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// PassSummary accumulates statistics for one reconciliation pass
type PassSummary struct {
	CorrelationID string
	Window        window.Window
	DryRun        bool
	StartTime     time.Time
	EndTime       time.Time

	RunsSeen     int
	AnalysesSeen int
	Quarantined  int
	Failures     int

	// Halted is set when the pass stopped before the last run
	Halted bool

	// Outcomes counts analyses by terminal state name
	Outcomes map[string]int
}

// NewPassSummary starts a summary for a pass beginning at start
func NewPassSummary(correlationID string, w window.Window, dryRun bool, start time.Time) *PassSummary {
	return &PassSummary{
		CorrelationID: correlationID,
		Window:        w,
		DryRun:        dryRun,
		StartTime:     start,
		Outcomes:      make(map[string]int),
	}
}

// AddRun counts a run record about to be evaluated
func (s *PassSummary) AddRun() {
	s.RunsSeen++
}

// Record counts one analysis that ended in outcome. failed marks outcomes that
// required an escalation.
func (s *PassSummary) Record(outcome string, failed bool) {
	s.AnalysesSeen++
	s.Outcomes[outcome]++
	if failed {
		s.Failures++
	}
}

// Count returns how many analyses ended in outcome
func (s *PassSummary) Count(outcome string) int {
	return s.Outcomes[outcome]
}

// Finish stamps the end of the pass
func (s *PassSummary) Finish(end time.Time) {
	s.EndTime = end
}

// Duration returns the wall time of a finished pass
func (s *PassSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// LogValue renders the summary as a structured log group
func (s *PassSummary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("correlation_id", s.CorrelationID),
		slog.String("window", s.Window.String()),
		slog.Bool("dry_run", s.DryRun),
		slog.Int("runs", s.RunsSeen),
		slog.Int("analyses", s.AnalysesSeen),
		slog.Int("quarantined", s.Quarantined),
		slog.Int("failures", s.Failures),
		slog.Bool("halted", s.Halted),
		slog.Duration("duration", s.Duration()),
	}

	names := make([]string, 0, len(s.Outcomes))
	for name := range s.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]any, 0, len(names))
	for _, name := range names {
		outcomes = append(outcomes, slog.Int(name, s.Outcomes[name]))
	}
	attrs = append(attrs, slog.Group("outcomes", outcomes...))

	return slog.GroupValue(attrs...)
}
