package submitter

import (
	"errors"
	"fmt"

	"github.com/livinlefevreloca/seqtrigger/internal/proc"
)

var (
	ErrMissingSamplesheet = errors.New("submitter: samplesheet missing")
)

// ConfigGenerationError reports a failed config phase. The marker has already
// been removed when this error is returned.
type ConfigGenerationError struct {
	RunID  string
	OutDir string
	Result proc.Result
	Err    error
}

func (e *ConfigGenerationError) Error() string {
	if e.Err != nil && e.Result.Kind == proc.KindNone {
		return fmt.Sprintf("submitter: config generation for run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("submitter: config generation for run %s failed (%s, exit code %d)",
		e.RunID, e.Result.Kind, e.Result.ExitCode)
}

func (e *ConfigGenerationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Result.Err
}

// SubmissionError reports a failed submission chain. Member names the chain
// member that failed, or is empty when the chain could not be started.
type SubmissionError struct {
	RunID  string
	OutDir string
	Member string
	Result proc.Result
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("submitter: submission for run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("submitter: %s submission for run %s failed (%s, exit code %d)",
		e.Member, e.RunID, e.Result.Kind, e.Result.ExitCode)
}

func (e *SubmissionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Result.Err
}

// MissingExecutableError reports a configured executable that cannot be run
type MissingExecutableError struct {
	Role string
	Path string
	Err  error
}

func (e *MissingExecutableError) Error() string {
	return fmt.Sprintf("submitter: %s executable %q unusable: %v", e.Role, e.Path, e.Err)
}

func (e *MissingExecutableError) Unwrap() error {
	return e.Err
}
