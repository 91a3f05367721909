package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Git wraps the git commands taskloop needs, bound to one repository.
type Git struct {
	runner  Runner
	workDir string
}

// New creates a Git instance for the repository at workDir.
func New(workDir string, runner Runner) *Git {
	return &Git{runner: runner, workDir: workDir}
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	return g.runner.Run(ctx, g.workDir, "git", "rev-parse", "--abbrev-ref", "HEAD")
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := g.runner.Run(ctx, g.workDir, "git", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// StageAll stages all changes.
func (g *Git) StageAll(ctx context.Context) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "add", "-A")
	return err
}

// HasStagedChanges reports whether anything is staged for commit.
func (g *Git) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := g.runner.Run(ctx, g.workDir, "git", "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	// Exit code 1 means there are staged changes.
	var cmdErr *CommandError
	if asCommandError(err, &cmdErr) && !cmdErr.TimedOut {
		return true, nil
	}
	return false, err
}

// Commit creates a commit with the given message.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "commit", "-m", message)
	return err
}

// Checkout switches to an existing branch.
func (g *Git) Checkout(ctx context.Context, branch string) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "checkout", branch)
	return err
}

// CreateBranch creates and checks out a new branch.
func (g *Git) CreateBranch(ctx context.Context, branch string) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "checkout", "-b", branch)
	return err
}

// Pull pulls the current branch from origin.
func (g *Git) Pull(ctx context.Context) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "pull")
	return err
}

// Push pushes the current branch to origin, setting upstream.
func (g *Git) Push(ctx context.Context, branch string) error {
	_, err := g.runner.Run(ctx, g.workDir, "git", "push", "-u", "origin", branch)
	return err
}

// AheadCount returns how many commits the current branch is ahead of the
// trunk branch.
func (g *Git) AheadCount(ctx context.Context, trunk string) (int, error) {
	out, err := g.runner.Run(ctx, g.workDir, "git", "rev-list", "--count", fmt.Sprintf("%s..HEAD", trunk))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse ahead count %q: %w", out, err)
	}
	return n, nil
}

func asCommandError(err error, target **CommandError) bool {
	for err != nil {
		if ce, ok := err.(*CommandError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
