package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
)

// isoMillis renders epoch milliseconds as ISO-8601 UTC
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// runView is a run record as shown to operators
type runView struct {
	RunID       string                       `json:"run_id" yaml:"run_id"`
	Timestamp   string                       `json:"timestamp" yaml:"timestamp"`
	TimestampMs int64                        `json:"timestamp_ms" yaml:"timestamp_ms"`
	Analyses    []statusstore.AnalysisRecord `json:"analyses" yaml:"analyses"`
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoMillis)
}

func toViews(runs []statusstore.RunRecord) []runView {
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView{
			RunID:       run.RunID,
			Timestamp:   formatTimestamp(run.Timestamp),
			TimestampMs: run.Timestamp,
			Analyses:    run.Analyses,
		})
	}
	return views
}

func renderRecords(w io.Writer, format string, runs []statusstore.RunRecord) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toViews(runs))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toViews(runs)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, runs)
	}
}

func renderText(w io.Writer, runs []statusstore.RunRecord) error {
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s\n", run.RunID, formatTimestamp(run.Timestamp))

		for _, a := range run.Analyses {
			fmt.Fprintf(w, "  %-7s  %s  %s", a.Status, orDash(a.AnalysisID), a.OutDir)
			if a.EndTime != "" {
				fmt.Fprintf(w, "  end=%s", a.EndTime)
			}
			fmt.Fprintln(w)

			for _, m := range a.MuxStatuses {
				fmt.Fprintf(w, "    mux %s  %s  archive=%t downstream=%t stats=%t email=%t\n",
					m.MuxID, orDash(m.Status),
					m.ArchiveSubmitted, m.DownstreamSubmitted, m.StatsSubmitted, m.EmailSent)
			}
		}
	}

	_, err := fmt.Fprintf(w, "%d run(s)\n", len(runs))
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
