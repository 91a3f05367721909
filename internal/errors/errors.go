// Package errors provides structured error types for taskloop.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for taskloop.
const (
	// Precondition errors (fatal before any task runs)
	CodeTaskStoreMissing   Code = "TASK_STORE_MISSING"
	CodeRulesMissing       Code = "RULES_MISSING"
	CodeCredentialsMissing Code = "CREDENTIALS_MISSING"

	// Loop errors
	CodeMaxRetries   Code = "MAX_RETRIES_EXCEEDED"
	CodeIterationCap Code = "ITERATION_CAP_EXCEEDED"

	// Agent errors
	CodeAgentTimeout     Code = "AGENT_TIMEOUT"
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"

	// Git errors
	CodeGitSetupFailed Code = "GIT_SETUP_FAILED"

	// Archive errors
	CodeArchiveFailed Code = "ARCHIVE_FAILED"
)

// LoopError is the structured error type for taskloop.
type LoopError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *LoopError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Is reports whether target is a LoopError with the same code.
func (e *LoopError) Is(target error) bool {
	t, ok := target.(*LoopError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *LoopError) WithCause(err error) *LoopError {
	return &LoopError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrTaskStoreMissing returns an error for a missing task store document.
func ErrTaskStoreMissing(path string) *LoopError {
	return &LoopError{
		Code: CodeTaskStoreMissing,
		What: "task store not found",
		Why:  fmt.Sprintf("No task store document at %s", path),
		Fix:  "Create the task store with at least one task, or run from the project root",
	}
}

// ErrRulesMissing returns an error for a missing system-rules document.
func ErrRulesMissing(path string) *LoopError {
	return &LoopError{
		Code: CodeRulesMissing,
		What: "system rules file not found",
		Why:  fmt.Sprintf("No rules document at %s; the agent prompt requires it", path),
		Fix:  "Create the rules file before starting a run",
	}
}

// ErrCredentialsMissing returns an error when the selected provider mode has no credentials.
func ErrCredentialsMissing(mode, missing string) *LoopError {
	return &LoopError{
		Code: CodeCredentialsMissing,
		What: fmt.Sprintf("missing credentials for provider mode %q", mode),
		Why:  fmt.Sprintf("Required environment variable(s) not set: %s", missing),
		Fix:  "Export the provider credentials, or switch TASKLOOP_PROVIDER to another mode",
	}
}

// ErrMaxRetries returns an error when a task exhausts its retry budget.
func ErrMaxRetries(taskID int, title string, attempts int) *LoopError {
	return &LoopError{
		Code: CodeMaxRetries,
		What: fmt.Sprintf("task %d (%s) failed after %d attempts", taskID, title, attempts),
		Why:  "The agent never marked the task complete within the retry budget",
		Fix:  "Inspect execution.log with 'taskloop diagnose', fix the task description, and rerun",
	}
}

// ErrIterationCap returns an error when the global iteration cap is exceeded.
func ErrIterationCap(iterations int) *LoopError {
	return &LoopError{
		Code: CodeIterationCap,
		What: fmt.Sprintf("loop halted after %d iterations", iterations),
		Why:  "Tasks are failing without reaching their per-task retry limits",
		Fix:  "Review the task store for tasks the agent cannot complete",
	}
}

// ErrAgentTimeout returns an error when an agent invocation hits the hard timeout.
func ErrAgentTimeout(duration string) *LoopError {
	return &LoopError{
		Code: CodeAgentTimeout,
		What: "agent invocation timed out",
		Why:  fmt.Sprintf("No completion after %s", duration),
		Fix:  "Increase TASKLOOP_TASK_TIMEOUT_MS, or split the task into smaller tasks",
	}
}

// ErrAgentUnavailable returns an error when the agent binary cannot be spawned.
func ErrAgentUnavailable(binary string) *LoopError {
	return &LoopError{
		Code: CodeAgentUnavailable,
		What: fmt.Sprintf("agent binary %q is not available", binary),
		Why:  "Could not find or execute the external coding agent",
		Fix:  "Install the agent CLI or set agent_path in .taskloop.yaml",
	}
}

// ErrGitSetupFailed returns an error when branch setup fails at loop start.
func ErrGitSetupFailed(cause error) *LoopError {
	return &LoopError{
		Code:  CodeGitSetupFailed,
		What:  "session branch setup failed",
		Why:   "A git command failed or timed out while preparing the session branch",
		Fix:   "Resolve the git state manually (uncommitted changes, remote access) and rerun",
		Cause: cause,
	}
}

// ErrArchiveFailed returns an error when archiving session artifacts fails.
func ErrArchiveFailed(cause error) *LoopError {
	return &LoopError{
		Code:  CodeArchiveFailed,
		What:  "failed to archive session artifacts",
		Why:   "Copying working files into the archive directory failed",
		Fix:   "Check disk space and permissions on the archives directory",
		Cause: cause,
	}
}

// AsLoopError attempts to convert an error to a LoopError.
// Returns nil if the error is not a LoopError.
func AsLoopError(err error) *LoopError {
	var le *LoopError
	if stderrors.As(err, &le) {
		return le
	}
	return nil
}

// Wrap wraps a generic error into a LoopError with unknown code.
func Wrap(err error, what string) *LoopError {
	return &LoopError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
