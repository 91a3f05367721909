// Package execlog writes the persistent execution log.
//
// Lines are timestamped and severity-tagged so the post-mortem analyzer
// can reconstruct task timelines offline. The log is append-only during a
// run; only the archive reset truncates it.
package execlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Severity tags for log lines.
const (
	LevelInfo    = "INFO"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// Marker phrases recognized by the post-mortem analyzer. Keep these in
// sync with internal/postmortem.
const (
	MarkerTaskStart    = "starting task"
	MarkerSpawn        = "spawning agent"
	MarkerTaskComplete = "task complete"
	MarkerHardTimeout  = "hard timeout"
	MarkerForceKill    = "force kill"
	MarkerGitTimeout   = "git command timed out"
)

// TimeLayout is the timestamp format of every log line.
const TimeLayout = time.RFC3339

// Logger appends timestamped lines to the execution log file and mirrors
// them to slog.
type Logger struct {
	mu     sync.Mutex
	path   string
	slog   *slog.Logger
	now    func() time.Time
}

// New creates a Logger appending to path. The file is created on first
// write.
func New(path string, sl *slog.Logger) *Logger {
	if sl == nil {
		sl = slog.Default()
	}
	return &Logger{path: path, slog: sl, now: time.Now}
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Infof logs an INFO line.
func (l *Logger) Infof(format string, args ...any) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a WARN line.
func (l *Logger) Warnf(format string, args ...any) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an ERROR line.
func (l *Logger) Errorf(format string, args ...any) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

// Successf logs a SUCCESS line.
func (l *Logger) Successf(format string, args ...any) {
	l.write(LevelSuccess, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level, msg string) {
	line := fmt.Sprintf("%s [%s] %s\n", l.now().Format(TimeLayout), level, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.slog.Warn("execution log unavailable", "path", l.path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		l.slog.Warn("execution log write failed", "error", err)
	}

	switch level {
	case LevelWarn:
		l.slog.Warn(msg)
	case LevelError:
		l.slog.Error(msg)
	default:
		l.slog.Info(msg)
	}
}

// RawWriter returns a writer that appends raw, untagged output (agent
// stdout/stderr) to the log file. The caller must Close it.
func (l *Logger) RawWriter() (io.WriteCloser, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
