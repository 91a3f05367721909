package git

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskloop/internal/execlog"
	"taskloop/internal/taskstore"
)

// SessionInfo describes the branch a loop run is bound to.
type SessionInfo struct {
	Name      string
	Branch    string
	StartedAt time.Time
	// Resumed is true when an existing session branch was continued
	// instead of creating a fresh one.
	Resumed bool
}

// Manager binds loop executions to session branches.
type Manager struct {
	git       *Git
	trunk     string
	storePath string
	logger    *slog.Logger
	xlog      *execlog.Logger
	now       func() time.Time
}

// NewManager creates a session manager. xlog may be nil; when set, git
// command timeouts are also recorded in the execution log so the
// post-mortem analyzer can attribute hangs to them.
func NewManager(g *Git, trunk, taskStorePath string, logger *slog.Logger, xlog *execlog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		git:       g,
		trunk:     trunk,
		storePath: taskStorePath,
		logger:    logger,
		xlog:      xlog,
		now:       time.Now,
	}
}

// noteGitError mirrors a git failure into the execution log, flagging
// timeouts with the marker phrase the analyzer scans for.
func (m *Manager) noteGitError(context string, err error) {
	if m.xlog == nil {
		return
	}
	var cmdErr *CommandError
	if asCommandError(err, &cmdErr) && cmdErr.TimedOut {
		m.xlog.Warnf("%s during %s: %v", execlog.MarkerGitTimeout, context, err)
		return
	}
	m.xlog.Warnf("git failure during %s: %v", context, err)
}

// Prepare evaluates the branch state machine once at loop start and
// returns the session the loop will run under.
//
// A branch matching the session naming convention is resumed only when
// the task store holds at least one real (non-template) task that is
// still incomplete. When all real tasks are complete but the branch is
// ahead of trunk, the session is treated as finished-but-not-archived and
// a fresh session is started instead. The ahead-count check is a
// heuristic, not a guarantee: an unrelated branch ahead of trunk is
// indistinguishable from a finished session.
func (m *Manager) Prepare(ctx context.Context, sessionName string) (*SessionInfo, error) {
	current, err := m.git.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current branch: %w", err)
	}

	if IsSessionBranch(current) {
		tasks, err := taskstore.Load(m.storePath)
		if err != nil {
			return nil, err
		}
		real := taskstore.RealTasks(tasks)
		if _, incomplete := taskstore.FirstIncomplete(real); len(real) > 0 && incomplete {
			m.logger.Info("resuming session branch", "branch", current, "tasks", len(real))
			return &SessionInfo{
				Name:      sessionName,
				Branch:    current,
				StartedAt: m.now(),
				Resumed:   true,
			}, nil
		}

		ahead, err := m.git.AheadCount(ctx, m.trunk)
		if err != nil {
			m.logger.Warn("ahead-count check failed, starting fresh session", "error", err)
		} else if ahead > 0 {
			m.logger.Info("session branch finished but not archived, starting fresh",
				"branch", current, "ahead", ahead)
		}
	}

	return m.freshStart(ctx, sessionName)
}

// freshStart returns the tree to trunk, pulls, and creates the session
// branch. Dirty state is auto-committed first so nothing is lost.
func (m *Manager) freshStart(ctx context.Context, sessionName string) (*SessionInfo, error) {
	clean, err := m.git.IsClean(ctx)
	if err != nil {
		return nil, fmt.Errorf("check working tree: %w", err)
	}
	if !clean {
		m.logger.Warn("working tree dirty, committing backup before session start")
		if err := m.git.StageAll(ctx); err != nil {
			return nil, fmt.Errorf("stage dirty state: %w", err)
		}
		if err := m.git.Commit(ctx, "chore: backup uncommitted changes before session start"); err != nil {
			return nil, fmt.Errorf("commit dirty state: %w", err)
		}
	}

	if err := m.git.Checkout(ctx, m.trunk); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", m.trunk, err)
	}
	if err := m.git.Pull(ctx); err != nil {
		// Branch setup failures abort before any task runs, pull included.
		m.noteGitError("branch setup", err)
		return nil, fmt.Errorf("pull %s: %w", m.trunk, err)
	}

	start := m.now()
	branch := SessionBranch(sessionName, start)
	if err := m.git.CreateBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}

	m.logger.Info("created session branch", "branch", branch)
	return &SessionInfo{
		Name:      sessionName,
		Branch:    branch,
		StartedAt: start,
	}, nil
}

// CommitTask stages all changes and commits the delta for a completed
// task. Nothing staged is a skipped commit, not an error. Failures are
// logged as warnings and swallowed: the task's checkbox is the record of
// completion, not the commit.
func (m *Manager) CommitTask(ctx context.Context, taskID int, title string) {
	if err := m.git.StageAll(ctx); err != nil {
		m.logger.Warn("stage failed after task completion", "task", taskID, "error", err)
		m.noteGitError("per-task commit", err)
		return
	}

	staged, err := m.git.HasStagedChanges(ctx)
	if err != nil {
		m.logger.Warn("staged-changes check failed", "task", taskID, "error", err)
		m.noteGitError("per-task commit", err)
		return
	}
	if !staged {
		m.logger.Info("no changes to commit", "task", taskID)
		return
	}

	msg := fmt.Sprintf("task %d: %s", taskID, title)
	if err := m.git.Commit(ctx, msg); err != nil {
		m.logger.Warn("commit failed after task completion", "task", taskID, "error", err)
		m.noteGitError("per-task commit", err)
	}
}

// CommitArchive stages and commits the archive plus reset files, then
// pushes. Push failure is logged and swallowed; the commit is preserved
// locally.
func (m *Manager) CommitArchive(ctx context.Context, sessionName string) error {
	if err := m.git.StageAll(ctx); err != nil {
		return fmt.Errorf("stage archive: %w", err)
	}
	staged, err := m.git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if staged {
		msg := fmt.Sprintf("chore: archive session %s", sessionName)
		if err := m.git.Commit(ctx, msg); err != nil {
			return fmt.Errorf("commit archive: %w", err)
		}
	}

	branch, err := m.git.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if err := m.git.Push(ctx, branch); err != nil {
		m.logger.Warn("push failed, archive commit preserved locally", "error", err)
	}
	return nil
}
