package detector

import (
	"log/slog"

	"github.com/livinlefevreloca/seqtrigger/internal/marker"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
)

// State is the downstream state of one analysis
type State int

const (
	UpstreamPending    State = iota // upstream still running, re-evaluated next pass
	UpstreamFailed                  // upstream failed, never submitted
	ReadyForDownstream              // upstream succeeded, no marker yet
	AlreadySubmitted                // marker present
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case UpstreamPending:
		return "upstream_pending"
	case UpstreamFailed:
		return "upstream_failed"
	case ReadyForDownstream:
		return "ready_for_downstream"
	case AlreadySubmitted:
		return "already_submitted"
	default:
		return "unknown"
	}
}

// Detector decides what, if anything, downstream processing still needs for an
// analysis. The marker check is not atomic with any later action; callers that
// need exclusivity claim the marker exclusively.
type Detector struct {
	markers *marker.Markers
	logger  *slog.Logger
}

// New creates a detector that consults markers
func New(markers *marker.Markers, logger *slog.Logger) *Detector {
	return &Detector{markers: markers, logger: logger}
}

// Detect returns the downstream state of analysis
func (d *Detector) Detect(analysis statusstore.AnalysisRecord) State {
	switch analysis.Status {
	case statusstore.StatusSuccess:
		exists, err := d.markers.Exists(analysis.OutDir)
		if err != nil {
			d.logger.Warn("cannot check submission marker, treating as submitted",
				"out_dir", analysis.OutDir,
				"error", err)
		}
		if exists {
			return AlreadySubmitted
		}
		return ReadyForDownstream
	case statusstore.StatusFailed:
		return UpstreamFailed
	default:
		return UpstreamPending
	}
}
