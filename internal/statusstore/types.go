package statusstore

import (
	"fmt"

	"github.com/livinlefevreloca/seqtrigger/internal/window"
)

// AnalysisStatus is the upstream status of one analysis of a run
type AnalysisStatus string

const (
	StatusStarted AnalysisStatus = "STARTED"
	StatusSuccess AnalysisStatus = "SUCCESS"
	StatusFailed  AnalysisStatus = "FAILED"
)

// ParseAnalysisStatus validates a raw status value from the store
func ParseAnalysisStatus(s string) (AnalysisStatus, error) {
	switch AnalysisStatus(s) {
	case StatusStarted, StatusSuccess, StatusFailed:
		return AnalysisStatus(s), nil
	default:
		return "", fmt.Errorf("unknown analysis status %q", s)
	}
}

// RunRecord is one completed upstream run. Identity is RunID.
type RunRecord struct {
	RunID     string           `json:"run_id" yaml:"run_id"`
	Timestamp int64            `json:"timestamp" yaml:"timestamp"` // epoch milliseconds
	Analyses  []AnalysisRecord `json:"analyses" yaml:"analyses"`
}

// AnalysisRecord belongs to exactly one RunRecord
type AnalysisRecord struct {
	AnalysisID  string         `json:"analysis_id,omitempty" yaml:"analysis_id,omitempty"`
	Status      AnalysisStatus `json:"status" yaml:"status"`
	OutDir      string         `json:"out_dir" yaml:"out_dir"`
	EndTime     string         `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	MuxStatuses []MuxStatus    `json:"mux_statuses,omitempty" yaml:"mux_statuses,omitempty"`
}

// MuxStatus is read-only context; it is never used to decide idempotency.
type MuxStatus struct {
	MuxID               string `json:"mux_id" yaml:"mux_id"`
	ArchiveSubmitted    bool   `json:"archive_submitted" yaml:"archive_submitted"`
	DownstreamSubmitted bool   `json:"downstream_submitted" yaml:"downstream_submitted"`
	StatsSubmitted      bool   `json:"stats_submitted" yaml:"stats_submitted"`
	Status              string `json:"status,omitempty" yaml:"status,omitempty"`
	EmailSent           bool   `json:"email_sent" yaml:"email_sent"`
}

// Filter selects run records. Window is required; the other fields are
// optional exact (Status, MuxID) or prefix (RunIDPrefix) matches.
type Filter struct {
	Status      AnalysisStatus
	MuxID       string
	RunIDPrefix string
	Window      window.Window
}

// Quarantined is a run that could not be mapped to a valid RunRecord
type Quarantined struct {
	RunID  string
	Reason string
}

// Result is the outcome of a query
type Result struct {
	Runs        []RunRecord // ascending by timestamp
	Quarantined []Quarantined
}
