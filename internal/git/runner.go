package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Runner executes shell commands.
// This interface allows mocking command execution in tests.
type Runner interface {
	// Run executes a command and returns the trimmed stdout.
	// workDir is the working directory for the command.
	// If the command fails, it returns the stderr/stdout as the error message.
	Run(ctx context.Context, workDir string, name string, args ...string) (stdout string, err error)
}

// ExecRunner is the default Runner using exec.CommandContext with a
// per-command timeout.
type ExecRunner struct {
	timeout time.Duration
}

// NewExecRunner creates an ExecRunner. A zero timeout disables the bound.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{timeout: timeout}
}

// Run executes the command, bounded by the runner's timeout.
func (r *ExecRunner) Run(ctx context.Context, workDir, name string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		if errMsg == "" {
			errMsg = err.Error()
		}
		if ctx.Err() == context.DeadlineExceeded {
			errMsg = "command timed out: " + errMsg
		}
		return errMsg, &CommandError{
			Command:  name,
			Args:     args,
			WorkDir:  workDir,
			Output:   errMsg,
			TimedOut: ctx.Err() == context.DeadlineExceeded,
			Err:      err,
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// CommandError represents a command execution error.
type CommandError struct {
	Command  string
	Args     []string
	WorkDir  string
	Output   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
