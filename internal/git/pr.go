package git

import (
	"context"
	"fmt"
	"os/exec"
)

// TryOpenPR best-effort opens a pull request for the current branch via
// the gh CLI. Every failure mode is non-fatal: no gh binary, no
// authentication, or the create call itself failing are all logged and
// skipped.
func (m *Manager) TryOpenPR(ctx context.Context, sessionName string) {
	if _, err := exec.LookPath("gh"); err != nil {
		m.logger.Info("gh CLI not installed, skipping pull request")
		return
	}

	if _, err := m.git.runner.Run(ctx, m.git.workDir, "gh", "auth", "status"); err != nil {
		m.logger.Info("gh CLI not authenticated, skipping pull request", "error", err)
		return
	}

	title := fmt.Sprintf("Session: %s", sessionName)
	body := fmt.Sprintf("Automated session branch for %s. See the archive summary for task and cost details.", sessionName)
	if out, err := m.git.runner.Run(ctx, m.git.workDir, "gh", "pr", "create",
		"--title", title, "--body", body, "--base", m.trunk); err != nil {
		m.logger.Warn("pull request creation failed", "error", err)
	} else {
		m.logger.Info("pull request opened", "url", out)
	}
}
