package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Kind classifies how a subprocess invocation ended
type Kind int

const (
	KindNone     Kind = iota // exited zero
	KindExit                 // exited nonzero
	KindStart                // could not be started
	KindCanceled             // killed because the context ended
)

// String returns a human-readable representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindExit:
		return "nonzero_exit"
	case KindStart:
		return "start_failure"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Command describes one external executable invocation
type Command struct {
	Path  string
	Args  []string
	Dir   string
	Stdin io.Reader

	// Output, when set, receives combined stdout and stderr as it is produced
	Output io.Writer
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result is the uniform outcome of running a Command
type Result struct {
	ExitCode int
	Output   []byte // combined stdout and stderr
	Kind     Kind
	Err      error
}

// OK reports whether the command exited zero
func (r Result) OK() bool {
	return r.Kind == KindNone
}

// Runner runs external commands. Implementations block until the process exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts cmd and waits for it to finish
func (r *ExecRunner) Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var buf bytes.Buffer
	var out io.Writer = &buf
	if cmd.Output != nil {
		out = io.MultiWriter(cmd.Output, &buf)
	}
	c.Stdout = out
	c.Stderr = out

	r.logger.Debug("running command", "command", cmd.String(), "dir", cmd.Dir)
	err := c.Run()

	result := classify(ctx, err)
	result.Output = buf.Bytes()
	if !result.OK() {
		r.logger.Debug("command failed",
			"command", cmd.String(),
			"kind", result.Kind.String(),
			"exit_code", result.ExitCode)
	}
	return result
}

func classify(ctx context.Context, err error) Result {
	if err == nil {
		return Result{Kind: KindNone}
	}
	if ctx.Err() != nil {
		return Result{ExitCode: -1, Kind: KindCanceled, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Kind: KindExit, Err: err}
	}
	return Result{ExitCode: -1, Kind: KindStart, Err: err}
}

// ChainResult is the outcome of RunChain
type ChainResult struct {
	Result
	Failed int      // index of the failing member, -1 when all succeeded
	Steps  []Result // one entry per member that ran
}

// RunChain runs cmds in order, each only if the previous one exited zero.
// The chain fails as a whole when any member fails.
func RunChain(ctx context.Context, r Runner, cmds []Command) ChainResult {
	chain := ChainResult{Result: Result{Kind: KindNone}, Failed: -1}

	var combined bytes.Buffer
	for i, cmd := range cmds {
		res := r.Run(ctx, cmd)
		chain.Steps = append(chain.Steps, res)
		combined.Write(res.Output)

		if !res.OK() {
			chain.Result = res
			chain.Failed = i
			break
		}
	}

	chain.Output = combined.Bytes()
	return chain
}

// CheckExecutable returns an error unless path is an existing executable file
func CheckExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("no executable configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
