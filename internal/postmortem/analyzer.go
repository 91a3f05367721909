// Package postmortem reconstructs task timelines from a completed
// execution log. It is offline and read-only: it never mutates working
// state and is not part of the live loop.
package postmortem

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskloop/internal/execlog"
)

// TaskStatus classifies how a task fared in the log.
type TaskStatus string

const (
	// StatusCompleted means both a start and a success marker were seen.
	StatusCompleted TaskStatus = "completed"
	// StatusHung means the agent was spawned but no success marker
	// appeared before the log ended.
	StatusHung TaskStatus = "hung"
	// StatusNeverStarted means no spawn marker was ever associated with
	// the task.
	StatusNeverStarted TaskStatus = "never-started"
)

// HungCause is the suspected reason a hung task stalled.
type HungCause string

const (
	CauseNone        HungCause = ""
	CauseHardTimeout HungCause = "hard-timeout"
	CauseGitTimeout  HungCause = "git-timeout"
	CauseUnknown     HungCause = "unknown"
)

// TaskReport is the per-task analysis result.
type TaskReport struct {
	ID       int
	Title    string
	Status   TaskStatus
	Attempts int
	// Duration is elapsed time from the last start marker to the
	// success marker. Zero unless completed.
	Duration time.Duration
	Cause    HungCause
}

// Report is the full analysis of one execution log.
type Report struct {
	Tasks       []TaskReport
	ParsedLines int
}

var (
	linePattern    = regexp.MustCompile(`^(\S+) \[(INFO|WARN|ERROR|SUCCESS)\] (.*)$`)
	startPattern   = regexp.MustCompile(regexp.QuoteMeta(execlog.MarkerTaskStart) + ` (\d+): (.*?) \(tier`)
	successPattern = regexp.MustCompile(regexp.QuoteMeta(execlog.MarkerTaskComplete) + `: task (\d+) done`)
)

type taskEvents struct {
	id          int
	title       string
	firstSeen   int
	attempts    int
	lastStart   time.Time
	spawned     bool
	completed   bool
	duration    time.Duration
	hardTimeout bool
	gitTimeout  bool
}

// Analyze reconstructs per-task timelines from the log text.
func Analyze(logText string) Report {
	tasks := make(map[int]*taskEvents)
	var current *taskEvents
	parsed := 0

	for i, line := range strings.Split(logText, "\n") {
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		parsed++

		ts, tsErr := time.Parse(execlog.TimeLayout, m[1])
		msg := m[3]

		if sm := startPattern.FindStringSubmatch(msg); sm != nil {
			id, _ := strconv.Atoi(sm[1])
			ev := tasks[id]
			if ev == nil {
				ev = &taskEvents{id: id, title: sm[2], firstSeen: i}
				tasks[id] = ev
			}
			ev.attempts++
			if tsErr == nil {
				ev.lastStart = ts
			}
			current = ev
			continue
		}

		if sm := successPattern.FindStringSubmatch(msg); sm != nil {
			id, _ := strconv.Atoi(sm[1])
			if ev := tasks[id]; ev != nil {
				ev.completed = true
				if tsErr == nil && !ev.lastStart.IsZero() {
					ev.duration = ts.Sub(ev.lastStart)
				}
			}
			continue
		}

		// Markers without a task id attach to the task whose window we
		// are inside (the most recent start).
		if current == nil {
			continue
		}
		switch {
		case strings.Contains(msg, execlog.MarkerSpawn):
			current.spawned = true
		case strings.Contains(msg, execlog.MarkerHardTimeout):
			current.hardTimeout = true
		case strings.Contains(msg, execlog.MarkerGitTimeout):
			current.gitTimeout = true
		}
	}

	ordered := make([]*taskEvents, 0, len(tasks))
	for _, ev := range tasks {
		ordered = append(ordered, ev)
	}
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].firstSeen < ordered[b].firstSeen })

	report := Report{ParsedLines: parsed}
	for _, ev := range ordered {
		tr := TaskReport{
			ID:       ev.id,
			Title:    ev.title,
			Attempts: ev.attempts,
		}
		switch {
		case ev.completed:
			tr.Status = StatusCompleted
			tr.Duration = ev.duration
		case ev.spawned:
			tr.Status = StatusHung
			switch {
			case ev.hardTimeout:
				tr.Cause = CauseHardTimeout
			case ev.gitTimeout:
				tr.Cause = CauseGitTimeout
			default:
				tr.Cause = CauseUnknown
			}
		default:
			tr.Status = StatusNeverStarted
		}
		report.Tasks = append(report.Tasks, tr)
	}
	return report
}

// Render formats the report for terminal output.
func (r Report) Render() string {
	var sb strings.Builder
	if len(r.Tasks) == 0 {
		sb.WriteString("No task activity found in the log.\n")
		return sb.String()
	}

	for _, t := range r.Tasks {
		switch t.Status {
		case StatusCompleted:
			fmt.Fprintf(&sb, "task %d (%s): completed in %s after %d attempt(s)\n",
				t.ID, t.Title, t.Duration.Round(time.Second), t.Attempts)
		case StatusHung:
			fmt.Fprintf(&sb, "task %d (%s): HUNG after %d attempt(s), suspected cause: %s\n",
				t.ID, t.Title, t.Attempts, t.Cause)
		case StatusNeverStarted:
			fmt.Fprintf(&sb, "task %d (%s): never started (%d selection(s), no agent spawn)\n",
				t.ID, t.Title, t.Attempts)
		}
	}
	return sb.String()
}
