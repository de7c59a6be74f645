package submitter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/livinlefevreloca/seqtrigger/internal/marker"
	"github.com/livinlefevreloca/seqtrigger/internal/proc"
)

// Chain member names, in execution order
const (
	MemberMapping   = "mapping"
	MemberDependent = "dependent"
)

// Config holds the executables and file layout used for submission
type Config struct {
	ConfigGenerator    string
	MappingSubmitter   string
	DependentSubmitter string
	SubmitFlags        []string
	SamplesheetName    string
	LogDir             string
	SubmissionLog      string
}

// Job identifies one analysis to submit
type Job struct {
	RunID  string
	OutDir string
}

// Submitter generates the downstream config for an analysis and submits the
// dependent mapping jobs
type Submitter struct {
	cfg     Config
	markers *marker.Markers
	runner  proc.Runner
	logger  *slog.Logger
}

// New creates a Submitter
func New(cfg Config, markers *marker.Markers, runner proc.Runner, logger *slog.Logger) *Submitter {
	return &Submitter{
		cfg:     cfg,
		markers: markers,
		runner:  runner,
		logger:  logger,
	}
}

// CheckExecutables verifies every configured executable exists and is runnable
func (s *Submitter) CheckExecutables() error {
	executables := []struct {
		role string
		path string
	}{
		{"config generator", s.cfg.ConfigGenerator},
		{"mapping submitter", s.cfg.MappingSubmitter},
		{"dependent submitter", s.cfg.DependentSubmitter},
	}

	for _, exe := range executables {
		if err := proc.CheckExecutable(exe.path); err != nil {
			return &MissingExecutableError{Role: exe.role, Path: exe.path, Err: err}
		}
	}
	return nil
}

// GenerateConfig claims the marker for job and runs the config generator with
// its output captured in the marker. On failure the marker is removed.
// A marker claimed by someone else surfaces as marker.ErrExists.
func (s *Submitter) GenerateConfig(ctx context.Context, job Job) error {
	f, err := s.markers.Claim(job.OutDir)
	if err != nil {
		if errors.Is(err, marker.ErrExists) {
			return err
		}
		return &ConfigGenerationError{RunID: job.RunID, OutDir: job.OutDir, Err: err}
	}

	cmd := proc.Command{
		Path:   s.cfg.ConfigGenerator,
		Args:   []string{"-r", job.RunID},
		Output: f,
	}
	s.logger.Debug("generating config",
		"run_id", job.RunID,
		"marker", f.Name(),
		"command", cmd.String())

	result := s.runner.Run(ctx, cmd)
	closeErr := f.Close()

	if !result.OK() {
		s.removeMarker(job)
		return &ConfigGenerationError{RunID: job.RunID, OutDir: job.OutDir, Result: result}
	}
	if closeErr != nil {
		s.removeMarker(job)
		return &ConfigGenerationError{RunID: job.RunID, OutDir: job.OutDir, Err: closeErr}
	}
	return nil
}

// SamplesheetPath returns where the samplesheet for outDir is expected
func (s *Submitter) SamplesheetPath(outDir string) string {
	return filepath.Join(s.markers.DownstreamDir(outDir), s.cfg.SamplesheetName)
}

// HasSamplesheet reports whether the samplesheet for job is present
func (s *Submitter) HasSamplesheet(job Job) (bool, error) {
	_, err := os.Stat(s.SamplesheetPath(job.OutDir))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("submitter: stat samplesheet: %w", err)
}

// SubmissionLogPath returns the append-only log both submitters write to
func (s *Submitter) SubmissionLogPath(outDir string) string {
	return filepath.Join(outDir, s.cfg.LogDir, s.cfg.SubmissionLog)
}

// SubmitJobs runs the mapping submitter and then, only if it succeeded, the
// dependent submitter. Both run in the analysis out_dir and append their
// output to the submission log.
func (s *Submitter) SubmitJobs(ctx context.Context, job Job) error {
	ok, err := s.HasSamplesheet(job)
	if err != nil {
		return &SubmissionError{RunID: job.RunID, OutDir: job.OutDir, Err: err}
	}
	if !ok {
		return ErrMissingSamplesheet
	}

	logPath := s.SubmissionLogPath(job.OutDir)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return &SubmissionError{RunID: job.RunID, OutDir: job.OutDir, Err: err}
	}
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &SubmissionError{RunID: job.RunID, OutDir: job.OutDir, Err: err}
	}
	defer logFile.Close()

	args := s.submitArgs(job)
	members := []string{MemberMapping, MemberDependent}
	chain := proc.RunChain(ctx, s.runner, []proc.Command{
		{Path: s.cfg.MappingSubmitter, Args: args, Dir: job.OutDir, Output: logFile},
		{Path: s.cfg.DependentSubmitter, Args: args, Dir: job.OutDir, Output: logFile},
	})

	if !chain.OK() {
		return &SubmissionError{
			RunID:  job.RunID,
			OutDir: job.OutDir,
			Member: members[chain.Failed],
			Result: chain.Result,
		}
	}

	s.logger.Debug("submitted jobs", "run_id", job.RunID, "log", logPath)
	return nil
}

// SubmitCommands returns the commands SubmitJobs would run, for dry-run logging
func (s *Submitter) SubmitCommands(job Job) []proc.Command {
	args := s.submitArgs(job)
	return []proc.Command{
		{Path: s.cfg.MappingSubmitter, Args: args, Dir: job.OutDir},
		{Path: s.cfg.DependentSubmitter, Args: args, Dir: job.OutDir},
	}
}

// Rollback removes the marker for job
func (s *Submitter) Rollback(job Job) error {
	return s.markers.Remove(job.OutDir)
}

func (s *Submitter) submitArgs(job Job) []string {
	args := []string{
		"-r", job.RunID,
		"-f", job.OutDir,
		"-s", s.SamplesheetPath(job.OutDir),
	}
	return append(args, s.cfg.SubmitFlags...)
}

func (s *Submitter) removeMarker(job Job) {
	if err := s.markers.Remove(job.OutDir); err != nil {
		s.logger.Error("failed to remove marker after config failure",
			"run_id", job.RunID,
			"out_dir", job.OutDir,
			"error", err)
	}
}
