package loop

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase is the loop's current state-machine position, recorded for
// observers.
type Phase string

const (
	PhaseSelecting Phase = "selecting"
	PhaseRunning   Phase = "running"
	PhaseChecking  Phase = "checking"
	PhaseCooldown  Phase = "cooldown"
	PhaseDone      Phase = "done"
	PhaseAborted   Phase = "aborted"
)

// SessionState is the explicit, loop-owned session state object. The
// loop is its only writer; observers receive read-only snapshots via
// Snapshot or the on-disk state file.
type SessionState struct {
	mu sync.RWMutex

	path string
	data stateData
}

type stateData struct {
	Session     string         `yaml:"session"`
	Branch      string         `yaml:"branch"`
	StartedAt   time.Time      `yaml:"started_at"`
	UpdatedAt   time.Time      `yaml:"updated_at"`
	Phase       Phase          `yaml:"phase"`
	CurrentTask int            `yaml:"current_task,omitempty"`
	Iteration   int            `yaml:"iteration"`
	Completed   int            `yaml:"completed"`
	Total       int            `yaml:"total"`
	Attempts    map[int]int    `yaml:"attempts,omitempty"`
}

// StateSnapshot is a read-only copy of the session state.
type StateSnapshot struct {
	Session     string
	Branch      string
	StartedAt   time.Time
	UpdatedAt   time.Time
	Phase       Phase
	CurrentTask int
	Iteration   int
	Completed   int
	Total       int
}

// NewSessionState creates session state persisted at path.
func NewSessionState(path, session, branch string, start time.Time) *SessionState {
	return &SessionState{
		path: path,
		data: stateData{
			Session:   session,
			Branch:    branch,
			StartedAt: start,
			UpdatedAt: start,
			Phase:     PhaseSelecting,
			Attempts:  make(map[int]int),
		},
	}
}

// update applies a mutation under the write lock and persists the
// result. Persistence failures are surfaced to the caller but the
// in-memory state is already updated.
func (s *SessionState) update(fn func(*stateData)) error {
	s.mu.Lock()
	fn(&s.data)
	s.data.UpdatedAt = time.Now()
	data := s.data
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	out, err := yaml.Marshal(&data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Snapshot returns a read-only copy for observers.
func (s *SessionState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Session:     s.data.Session,
		Branch:      s.data.Branch,
		StartedAt:   s.data.StartedAt,
		UpdatedAt:   s.data.UpdatedAt,
		Phase:       s.data.Phase,
		CurrentTask: s.data.CurrentTask,
		Iteration:   s.data.Iteration,
		Completed:   s.data.Completed,
		Total:       s.data.Total,
	}
}
