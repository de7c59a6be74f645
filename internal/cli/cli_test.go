package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/livinlefevreloca/seqtrigger/internal/statusstore"
	"github.com/livinlefevreloca/seqtrigger/internal/statusstore/storetest"
)

// =============================================================================
// Test Helpers
// =============================================================================

type env struct {
	t         *testing.T
	db        *statusstore.DB
	dsn       string
	root      string
	bin       string
	generator string
	mapping   string
	dependent string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, dsn := storetest.NewSQLite(t)
	e := &env{t: t, db: db, dsn: dsn, root: t.TempDir(), bin: t.TempDir()}
	e.generator = e.script("generate-config.sh", "#!/bin/sh\necho \"[generated $2]\"\n")
	e.mapping = e.script("submit-bwa.sh", "#!/bin/sh\necho \"bwa $*\"\n")
	e.dependent = e.script("submit-rna.sh", "#!/bin/sh\necho \"rna $*\"\n")
	return e
}

func (e *env) script(name, body string) string {
	e.t.Helper()
	path := filepath.Join(e.bin, name)
	require.NoError(e.t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// writeConfig writes a config pointing at the test store and scripts, with
// extra appended verbatim
func (e *env) writeConfig(extra string) string {
	e.t.Helper()

	content := fmt.Sprintf(`
[store]
driver = "sqlite3"
dsn = %q
testing_dsn = %q

[pipeline]
name = "Mapping"
config_generator = %q
mapping_submitter = %q
dependent_submitter = %q
submit_flags = ["-j", "0"]
%s`, e.dsn, e.dsn, e.generator, e.mapping, e.dependent, extra)

	path := filepath.Join(e.t.TempDir(), "seqtrigger.toml")
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// addRun seeds a successful analysis completed age ago and returns its out_dir
func (e *env) addRun(runID string, age time.Duration, samplesheet bool) string {
	e.t.Helper()

	downstream := filepath.Join(e.root, runID)
	outDir := filepath.Join(downstream, "bcl2fastq_out")
	require.NoError(e.t, os.MkdirAll(outDir, 0o755))
	if samplesheet {
		require.NoError(e.t, os.WriteFile(filepath.Join(downstream, "samplesheet.csv"), []byte("lane,sample\n"), 0o644))
	}

	storetest.InsertRun(e.t, e.db, statusstore.RunRecord{
		RunID:     runID,
		Timestamp: time.Now().Add(-age).UnixMilli(),
		Analyses: []statusstore.AnalysisRecord{
			{AnalysisID: "2023-11-14T09-00-00", Status: statusstore.StatusSuccess, OutDir: outDir},
		},
	})
	return outDir
}

// execute runs the root command and returns its output and exit code
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), GetExitCode(err)
}

// =============================================================================
// Pass Tests
// =============================================================================

func TestPass_SubmitsReadyAnalysis(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("")

	_, stderr, code := execute(t, "-c", cfg)
	require.Equal(t, ExitSuccess, code, stderr)

	markerContent, err := os.ReadFile(filepath.Join(filepath.Dir(outDir), "downstream-marker"))
	require.NoError(t, err)
	assert.Equal(t, "[generated HS001_0001]\n", string(markerContent))

	log, err := os.ReadFile(filepath.Join(outDir, "logs", "mapping_submission.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "bwa -r HS001_0001 -f "+outDir)
	assert.Contains(t, string(log), "rna -r HS001_0001 -f "+outDir)
}

func TestPass_MarkerNameOverride(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("marker_name = \"config_casava-1.8.2.txt\"\n")

	_, stderr, code := execute(t, "-c", cfg)
	require.Equal(t, ExitSuccess, code, stderr)

	assert.FileExists(t, filepath.Join(filepath.Dir(outDir), "config_casava-1.8.2.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))
}

func TestPass_SecondPassIsNoop(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("")

	_, _, code := execute(t, "-c", cfg)
	require.Equal(t, ExitSuccess, code)

	logPath := filepath.Join(outDir, "logs", "mapping_submission.log")
	before, err := os.ReadFile(logPath)
	require.NoError(t, err)

	_, _, code = execute(t, "-c", cfg)
	require.Equal(t, ExitSuccess, code)

	after, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestPass_DryRunLeavesNoMarker(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("")

	_, _, code := execute(t, "-c", cfg, "--dry-run")
	require.Equal(t, ExitSuccess, code)

	assert.NoFileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))
	assert.NoDirExists(t, filepath.Join(outDir, "logs"))
}

func TestPass_WindowFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", 3*24*time.Hour, true)
	cfg := e.writeConfig("")

	_, _, code := execute(t, "-c", cfg, "-w", "1")
	require.Equal(t, ExitSuccess, code)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))

	_, _, code = execute(t, "-c", cfg, "-w", "5")
	require.Equal(t, ExitSuccess, code)
	assert.FileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))
}

func TestPass_SubmissionFailureStillExitsZero(t *testing.T) {
	e := newEnv(t)
	e.mapping = e.script("submit-bwa.sh", "#!/bin/sh\necho boom\nexit 3\n")
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("")

	_, stderr, code := execute(t, "-c", cfg)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "submission failed")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args func(e *env) []string
		want int
	}{
		{
			name: "unknown flag",
			args: func(e *env) []string { return []string{"--bogus"} },
			want: ExitUsage,
		},
		{
			name: "unexpected argument",
			args: func(e *env) []string { return []string{"-c", e.writeConfig(""), "extra"} },
			want: ExitUsage,
		},
		{
			name: "missing config file",
			args: func(e *env) []string { return []string{"-c", filepath.Join(e.root, "nope.toml")} },
			want: ExitUsage,
		},
		{
			name: "unknown config key",
			args: func(e *env) []string {
				return []string{"-c", e.writeConfig("\n[reconcile]\nlookback = 3\n")}
			},
			want: ExitUsage,
		},
		{
			name: "non-positive window",
			args: func(e *env) []string { return []string{"-c", e.writeConfig(""), "-w", "0"} },
			want: ExitUsage,
		},
		{
			name: "store unreachable",
			args: func(e *env) []string {
				e.dsn = filepath.Join(e.root, "missing", "dir", "status.db")
				return []string{"-c", e.writeConfig("")}
			},
			want: ExitFailure,
		},
		{
			name: "executable missing",
			args: func(e *env) []string {
				e.dependent = filepath.Join(e.bin, "not-there.sh")
				return []string{"-c", e.writeConfig("")}
			},
			want: ExitFailure,
		},
		{
			name: "empty store",
			args: func(e *env) []string { return []string{"-c", e.writeConfig("")} },
			want: ExitSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, stderr, code := execute(t, tt.args(e)...)
			assert.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
	assert.Equal(t, ExitUsage, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitUsage, "bad", nil))))
}

// =============================================================================
// Records Tests
// =============================================================================

func TestRecords_JSON(t *testing.T) {
	e := newEnv(t)
	e.addRun("HS001_0001", 2*time.Hour, true)
	e.addRun("HS002_0002", time.Hour, true)
	cfg := e.writeConfig("")

	stdout, stderr, code := execute(t, "records", "-c", cfg, "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)

	var views []runView
	require.NoError(t, json.Unmarshal([]byte(stdout), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "HS001_0001", views[0].RunID)
	assert.Equal(t, "HS002_0002", views[1].RunID)
	assert.Equal(t, formatTimestamp(views[0].TimestampMs), views[0].Timestamp)
	require.Len(t, views[0].Analyses, 1)
	assert.Equal(t, statusstore.StatusSuccess, views[0].Analyses[0].Status)
}

func TestRecords_YAMLWithRunFilter(t *testing.T) {
	e := newEnv(t)
	e.addRun("HS001_0001", 2*time.Hour, true)
	e.addRun("HS002_0002", time.Hour, true)
	cfg := e.writeConfig("")

	stdout, stderr, code := execute(t, "records", "-c", cfg, "--format", "yaml", "--run", "HS002")
	require.Equal(t, ExitSuccess, code, stderr)

	var views []runView
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "HS002_0002", views[0].RunID)
}

func TestRecords_EmptyJSONIsArray(t *testing.T) {
	e := newEnv(t)
	cfg := e.writeConfig("")

	stdout, _, code := execute(t, "records", "-c", cfg, "--format", "json")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "[]\n", stdout)
}

func TestRecords_InvalidArguments(t *testing.T) {
	e := newEnv(t)
	cfg := e.writeConfig("")

	_, _, code := execute(t, "records", "-c", cfg, "--format", "xml")
	assert.Equal(t, ExitUsage, code)

	_, _, code = execute(t, "records", "-c", cfg, "--status", "DONE")
	assert.Equal(t, ExitUsage, code)
}

func TestRecords_DoesNotTrigger(t *testing.T) {
	e := newEnv(t)
	outDir := e.addRun("HS001_0001", time.Hour, true)
	cfg := e.writeConfig("")

	_, _, code := execute(t, "records", "-c", cfg)
	require.Equal(t, ExitSuccess, code)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outDir), "downstream-marker"))
}

func TestRenderText_Golden(t *testing.T) {
	runs := []statusstore.RunRecord{
		{
			RunID:     "HS001_0001",
			Timestamp: 1_699_999_000_000,
			Analyses: []statusstore.AnalysisRecord{
				{
					AnalysisID: "2023-11-14T09-00-00",
					Status:     statusstore.StatusSuccess,
					OutDir:     "/seq/HS001/bcl2fastq_2023",
					EndTime:    "2023-11-14T11-30-00",
					MuxStatuses: []statusstore.MuxStatus{
						{MuxID: "MUX_A", Status: "SUCCESS", ArchiveSubmitted: true, StatsSubmitted: true, EmailSent: true},
						{MuxID: "MUX_B"},
					},
				},
				{
					Status: statusstore.StatusStarted,
					OutDir: "/seq/HS001/bcl2fastq_retry",
				},
			},
		},
		{
			RunID:     "HS002_0002",
			Timestamp: 1_700_000_000_123,
			Analyses: []statusstore.AnalysisRecord{
				{
					AnalysisID: "2023-11-14T20-00-00",
					Status:     statusstore.StatusFailed,
					OutDir:     "/seq/HS002/bcl2fastq_2023",
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderRecords(&buf, "text", runs))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "records_text", buf.Bytes())
}

// =============================================================================
// Migrate Tests
// =============================================================================

func TestMigrate_ReportsVersion(t *testing.T) {
	e := newEnv(t)
	e.dsn = filepath.Join(t.TempDir(), "fresh.db")
	cfg := e.writeConfig("")

	stdout, stderr, code := execute(t, "migrate", "-c", cfg)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "schema version 2\n", stdout)

	// idempotent
	stdout, _, code = execute(t, "migrate", "-c", cfg)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "schema version 2\n", stdout)
}
