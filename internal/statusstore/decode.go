package statusstore

import (
	"fmt"
)

// decodeRun maps the raw rows of one run onto a validated RunRecord
func decodeRun(run runRow, analyses []analysisRow, muxes map[int][]muxRow) (RunRecord, error) {
	if run.RunID == "" {
		return RunRecord{}, fmt.Errorf("%w: empty run id", ErrMalformedRecord)
	}

	record := RunRecord{
		RunID:     run.RunID,
		Timestamp: run.Timestamp,
		Analyses:  make([]AnalysisRecord, 0, len(analyses)),
	}

	for _, a := range analyses {
		analysis, err := decodeAnalysis(a, muxes[a.Seq])
		if err != nil {
			return RunRecord{}, fmt.Errorf("%w: run %s analysis %d: %v", ErrMalformedRecord, run.RunID, a.Seq, err)
		}
		record.Analyses = append(record.Analyses, analysis)
	}

	return record, nil
}

func decodeAnalysis(a analysisRow, muxes []muxRow) (AnalysisRecord, error) {
	status, err := ParseAnalysisStatus(a.Status)
	if err != nil {
		return AnalysisRecord{}, err
	}

	// downstream work needs somewhere to go
	if status == StatusSuccess && a.OutDir.String == "" {
		return AnalysisRecord{}, fmt.Errorf("successful analysis has no out_dir")
	}

	analysis := AnalysisRecord{
		AnalysisID: a.AnalysisID.String,
		Status:     status,
		OutDir:     a.OutDir.String,
		EndTime:    a.EndTime.String,
	}

	seen := make(map[string]bool, len(muxes))
	for _, m := range muxes {
		if m.MuxID == "" {
			return AnalysisRecord{}, fmt.Errorf("mux status with empty mux_id")
		}
		if seen[m.MuxID] {
			return AnalysisRecord{}, fmt.Errorf("duplicate mux_id %s", m.MuxID)
		}
		seen[m.MuxID] = true

		analysis.MuxStatuses = append(analysis.MuxStatuses, MuxStatus{
			MuxID:               m.MuxID,
			ArchiveSubmitted:    m.ArchiveSubmitted,
			DownstreamSubmitted: m.DownstreamSubmitted,
			StatsSubmitted:      m.StatsSubmitted,
			Status:              m.Status.String,
			EmailSent:           m.EmailSent,
		})
	}

	return analysis, nil
}
