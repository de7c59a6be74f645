// Package storetest provisions throwaway sqlite status stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/tools/migrator"
)

// NewSQLite creates a migrated sqlite store in a temp dir and returns it with its DSN
func NewSQLite(t *testing.T) (*statusstore.DB, string) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "status.db")
	db, err := statusstore.Open(context.Background(), "sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	if err := migrator.RunMigrations(db.DB, "sqlite3", statusstore.Migrations()); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test store: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, dsn
}

// InsertRun writes record and its nested rows. Only tests write to a store.
func InsertRun(t *testing.T, db *statusstore.DB, record statusstore.RunRecord) {
	t.Helper()

	if _, err := db.Exec("INSERT INTO runcomplete (run_id, timestamp_ms) VALUES (?, ?)",
		record.RunID, record.Timestamp); err != nil {
		t.Fatalf("failed to insert run %s: %v", record.RunID, err)
	}

	for seq, a := range record.Analyses {
		_, err := db.Exec(`
			INSERT INTO analysis (run_id, seq, analysis_id, status, out_dir, end_time)
			VALUES (?, ?, ?, ?, ?, ?)`,
			record.RunID, seq, nullable(a.AnalysisID), string(a.Status), nullable(a.OutDir), nullable(a.EndTime))
		if err != nil {
			t.Fatalf("failed to insert analysis %d of %s: %v", seq, record.RunID, err)
		}

		for _, m := range a.MuxStatuses {
			_, err := db.Exec(`
				INSERT INTO mux_status (run_id, analysis_seq, mux_id, archive_submitted,
					downstream_submitted, stats_submitted, status, email_sent)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				record.RunID, seq, m.MuxID, m.ArchiveSubmitted, m.DownstreamSubmitted,
				m.StatsSubmitted, nullable(m.Status), m.EmailSent)
			if err != nil {
				t.Fatalf("failed to insert mux %s of %s: %v", m.MuxID, record.RunID, err)
			}
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
