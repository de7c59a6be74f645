package statusstore

import (
	"context"
	"database/sql"
	"strings"
)

type runRow struct {
	RunID     string
	Timestamp int64
}

type analysisRow struct {
	RunID      string
	Seq        int
	AnalysisID sql.NullString
	Status     string
	OutDir     sql.NullString
	EndTime    sql.NullString
}

type muxRow struct {
	RunID               string
	AnalysisSeq         int
	MuxID               string
	ArchiveSubmitted    bool
	DownstreamSubmitted bool
	StatsSubmitted      bool
	Status              sql.NullString
	EmailSent           bool
}

// Query returns the runs matching filter in ascending timestamp order.
// Malformed runs are left out of Result.Runs and listed in Result.Quarantined.
// Any failure to reach the store is reported as a *ConnectionError.
func (db *DB) Query(ctx context.Context, filter Filter) (*Result, error) {
	if filter.Window.IsZero() {
		return nil, ErrWindowRequired
	}

	runs, err := db.queryRuns(ctx, filter)
	if err != nil {
		return nil, &ConnectionError{Op: "query runs", Err: err}
	}

	result := &Result{Runs: []RunRecord{}}
	if len(runs) == 0 {
		return result, nil
	}

	analyses, err := db.queryAnalyses(ctx, filter)
	if err != nil {
		return nil, &ConnectionError{Op: "query analyses", Err: err}
	}

	muxes, err := db.queryMuxStatuses(ctx, filter)
	if err != nil {
		return nil, &ConnectionError{Op: "query mux statuses", Err: err}
	}

	for _, run := range runs {
		record, err := decodeRun(run, analyses[run.RunID], muxes[run.RunID])
		if err != nil {
			result.Quarantined = append(result.Quarantined, Quarantined{
				RunID:  run.RunID,
				Reason: err.Error(),
			})
			continue
		}
		result.Runs = append(result.Runs, record)
	}

	return result, nil
}

// windowClause restricts r (runcomplete) to the half-open window
const windowClause = "r.timestamp_ms >= ? AND r.timestamp_ms < ?"

func (db *DB) queryRuns(ctx context.Context, filter Filter) ([]runRow, error) {
	var b strings.Builder
	b.WriteString("SELECT r.run_id, r.timestamp_ms FROM runcomplete r WHERE ")
	b.WriteString(windowClause)
	args := []any{filter.Window.Start, filter.Window.End}

	if filter.RunIDPrefix != "" {
		b.WriteString(` AND r.run_id LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(filter.RunIDPrefix)+"%")
	}
	if filter.Status != "" {
		b.WriteString(" AND EXISTS (SELECT 1 FROM analysis a WHERE a.run_id = r.run_id AND a.status = ?)")
		args = append(args, string(filter.Status))
	}
	if filter.MuxID != "" {
		b.WriteString(" AND EXISTS (SELECT 1 FROM mux_status m WHERE m.run_id = r.run_id AND m.mux_id = ?)")
		args = append(args, filter.MuxID)
	}
	b.WriteString(" ORDER BY r.timestamp_ms ASC, r.run_id ASC")

	rows, err := db.QueryContext(ctx, db.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []runRow
	for rows.Next() {
		var run runRow
		if err := rows.Scan(&run.RunID, &run.Timestamp); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (db *DB) queryAnalyses(ctx context.Context, filter Filter) (map[string][]analysisRow, error) {
	query := `
		SELECT a.run_id, a.seq, a.analysis_id, a.status, a.out_dir, a.end_time
		FROM analysis a
		JOIN runcomplete r ON r.run_id = a.run_id
		WHERE ` + windowClause + `
		ORDER BY a.run_id, a.seq
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), filter.Window.Start, filter.Window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRun := make(map[string][]analysisRow)
	for rows.Next() {
		var a analysisRow
		err := rows.Scan(
			&a.RunID,
			&a.Seq,
			&a.AnalysisID,
			&a.Status,
			&a.OutDir,
			&a.EndTime,
		)
		if err != nil {
			return nil, err
		}
		byRun[a.RunID] = append(byRun[a.RunID], a)
	}

	return byRun, rows.Err()
}

func (db *DB) queryMuxStatuses(ctx context.Context, filter Filter) (map[string]map[int][]muxRow, error) {
	query := `
		SELECT m.run_id, m.analysis_seq, m.mux_id, m.archive_submitted, m.downstream_submitted,
		       m.stats_submitted, m.status, m.email_sent
		FROM mux_status m
		JOIN runcomplete r ON r.run_id = m.run_id
		WHERE ` + windowClause + `
		ORDER BY m.run_id, m.analysis_seq, m.mux_id
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), filter.Window.Start, filter.Window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRun := make(map[string]map[int][]muxRow)
	for rows.Next() {
		var m muxRow
		err := rows.Scan(
			&m.RunID,
			&m.AnalysisSeq,
			&m.MuxID,
			&m.ArchiveSubmitted,
			&m.DownstreamSubmitted,
			&m.StatsSubmitted,
			&m.Status,
			&m.EmailSent,
		)
		if err != nil {
			return nil, err
		}
		if byRun[m.RunID] == nil {
			byRun[m.RunID] = make(map[int][]muxRow)
		}
		byRun[m.RunID][m.AnalysisSeq] = append(byRun[m.RunID][m.AnalysisSeq], m)
	}

	return byRun, rows.Err()
}

// escapeLike makes s match literally inside a LIKE pattern
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
