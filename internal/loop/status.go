package loop

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"taskloop/internal/config"
	"taskloop/internal/taskstore"
)

// StateSource yields a live session-state snapshot when a loop is
// running in-process.
type StateSource interface {
	Snapshot() StateSnapshot
}

// Status is the read-only projection reported to the user.
type Status struct {
	Session     string
	Branch      string
	Phase       Phase
	CurrentTask int
	Iteration   int
	Completed   int
	Total       int
	TotalCost   float64
	StartedAt   time.Time
	Live        bool
}

// StatusReporter projects session status from an optional in-process
// state source plus the on-disk files. It is never a source of truth:
// with no live source it falls back to best-effort file reads.
type StatusReporter struct {
	cfg    *config.Config
	source StateSource
}

// NewStatusReporter creates a reporter. source may be nil, in which case
// only the on-disk files are consulted.
func NewStatusReporter(cfg *config.Config, source StateSource) *StatusReporter {
	return &StatusReporter{cfg: cfg, source: source}
}

// Report builds the current status.
func (r *StatusReporter) Report() Status {
	var st Status

	if r.source != nil {
		snap := r.source.Snapshot()
		st = Status{
			Session:     snap.Session,
			Branch:      snap.Branch,
			Phase:       snap.Phase,
			CurrentTask: snap.CurrentTask,
			Iteration:   snap.Iteration,
			Completed:   snap.Completed,
			Total:       snap.Total,
			StartedAt:   snap.StartedAt,
			Live:        true,
		}
	} else {
		r.fillFromStateFile(&st)
	}

	// Task counts from the store itself override stale snapshots.
	if data, err := os.ReadFile(r.cfg.Paths.TaskStore); err == nil {
		done, total := taskstore.CountCheckboxes(string(data))
		st.Completed, st.Total = done, total
		if st.Session == "" {
			if name, _, ok := taskstore.Metadata(string(data)); ok {
				st.Session = name
			}
		}
	}

	st.TotalCost = r.readTotalCost()
	return st
}

// fillFromStateFile reads the state snapshot the loop last persisted.
func (r *StatusReporter) fillFromStateFile(st *Status) {
	data, err := os.ReadFile(r.cfg.Paths.StateFile)
	if err != nil {
		return
	}
	var raw struct {
		Session     string    `yaml:"session"`
		Branch      string    `yaml:"branch"`
		Phase       string    `yaml:"phase"`
		CurrentTask int       `yaml:"current_task"`
		Iteration   int       `yaml:"iteration"`
		Completed   int       `yaml:"completed"`
		Total       int       `yaml:"total"`
		StartedAt   time.Time `yaml:"started_at"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	st.Session = raw.Session
	st.Branch = raw.Branch
	st.Phase = Phase(raw.Phase)
	st.CurrentTask = raw.CurrentTask
	st.Iteration = raw.Iteration
	st.Completed = raw.Completed
	st.Total = raw.Total
	st.StartedAt = raw.StartedAt
}

// readTotalCost queries the cost ledger without binding to its full
// schema.
func (r *StatusReporter) readTotalCost() float64 {
	data, err := os.ReadFile(r.cfg.Paths.CostLedger)
	if err != nil {
		return 0
	}
	return gjson.GetBytes(data, "session.totalCost").Float()
}

// Render formats the status for terminal output.
func (s Status) Render() string {
	var sb strings.Builder
	name := s.Session
	if name == "" {
		name = "(no session)"
	}
	fmt.Fprintf(&sb, "Session:   %s\n", name)
	if s.Branch != "" {
		fmt.Fprintf(&sb, "Branch:    %s\n", s.Branch)
	}
	if s.Phase != "" {
		live := ""
		if s.Live {
			live = " (live)"
		}
		fmt.Fprintf(&sb, "Phase:     %s%s\n", s.Phase, live)
	}
	fmt.Fprintf(&sb, "Tasks:     %d/%d complete\n", s.Completed, s.Total)
	if s.CurrentTask > 0 {
		fmt.Fprintf(&sb, "Current:   task %d (iteration %d)\n", s.CurrentTask, s.Iteration)
	}
	fmt.Fprintf(&sb, "Cost:      $%.4f\n", s.TotalCost)
	return sb.String()
}
