package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskloop/internal/agent"
	"taskloop/internal/archive"
	"taskloop/internal/config"
	looperr "taskloop/internal/errors"
	"taskloop/internal/execlog"
	"taskloop/internal/git"
	"taskloop/internal/loop"
	"taskloop/internal/taskstore"
)

func newRunCmd() *cobra.Command {
	var (
		sessionName string
		noArchive   bool
		noPR        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every incomplete task in the task store",
		Long: `Run drives the agent through every incomplete task in tasks.md:
select the next unchecked task, spawn the agent with a composed prompt,
re-read the store to detect the completion edit, commit the delta, and
repeat until done or a task exhausts its retry budget.

When all tasks complete, the session is archived and the working files
are reset for the next session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), sessionName, noArchive, noPR)
		},
	}

	cmd.Flags().StringVar(&sessionName, "session", "", "session name (default: task store metadata)")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip archive/reset after completion")
	cmd.Flags().BoolVar(&noPR, "no-pr", false, "skip pull request creation after archive")
	return cmd
}

func runSession(ctx context.Context, sessionName string, noArchive, noPR bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger()

	// Preconditions are checked before any git mutation happens.
	if _, err := os.Stat(cfg.Paths.TaskStore); err != nil {
		return looperr.ErrTaskStoreMissing(cfg.Paths.TaskStore)
	}
	if _, err := os.Stat(cfg.Paths.Rules); err != nil {
		return looperr.ErrRulesMissing(cfg.Paths.Rules)
	}
	provider, err := agent.ResolveProvider(cfg)
	if err != nil {
		return err
	}

	if sessionName == "" {
		sessionName = storeSessionName(cfg.Paths.TaskStore)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	xlog := execlog.New(cfg.Paths.ExecutionLog, logger)
	g := git.New(".", git.NewExecRunner(cfg.GitTimeout))
	sessions := git.NewManager(g, cfg.TrunkBranch, cfg.Paths.TaskStore, logger, xlog)

	info, err := sessions.Prepare(ctx, sessionName)
	if err != nil {
		return looperr.ErrGitSetupFailed(err)
	}
	if info.Resumed {
		fmt.Println(paint(styleWarn, "Resuming session"), info.Branch)
	} else {
		fmt.Println(paint(styleHeader, "Session"), info.Branch)
	}

	state := loop.NewSessionState(cfg.Paths.StateFile, info.Name, info.Branch, info.StartedAt)
	ledger := loop.NewLedger(cfg.Paths.CostLedger)
	supervisor := agent.NewSupervisor(cfg, provider, xlog, logger)
	l := loop.New(cfg, supervisor, sessions, ledger, xlog, state, logger)

	if err := l.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, paint(styleWarn, "Interrupted; session state preserved for resume."))
		}
		return err
	}

	snap := state.Snapshot()
	fmt.Println(paint(styleSuccess, fmt.Sprintf("All tasks complete (%d/%d).", snap.Completed, snap.Total)))

	if noArchive {
		fmt.Println(paint(styleDim, "Archive skipped (--no-archive)."))
		return nil
	}

	res := finishRun(cfg, logger)
	if res == nil {
		return nil
	}

	// Archive commit and PR run on a fresh context: an interrupt arriving
	// after the loop finished should not lose the archive commit.
	postCtx := context.Background()
	if err := sessions.CommitArchive(postCtx, info.Name); err != nil {
		logger.Warn("archive commit failed", "error", err)
	}
	if !noPR {
		sessions.TryOpenPR(postCtx, info.Name)
	}
	return nil
}

// finishRun archives and resets the session after a completed run. It
// never returns an error: the task work already succeeded, and archive
// or reset trouble must not turn that success into a failing exit.
func finishRun(cfg *config.Config, logger *slog.Logger) *archive.Result {
	archiver := archive.NewManager(cfg, logger)
	res, err := archiver.Archive()
	if err != nil {
		logger.Warn("archive failed, task work is still complete", "error", err)
		fmt.Fprintln(os.Stderr, paint(styleWarn, "Archive failed; working files left in place."))
		return nil
	}
	if err := archiver.Reset(res); err != nil {
		logger.Warn("reset failed after archive", "error", err)
	}
	fmt.Println(paint(styleSuccess, "Archived to"), res.ArchivePath)
	return res
}

// storeSessionName pulls the session name from the task store metadata,
// falling back to a generic name.
func storeSessionName(storePath string) string {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return "session"
	}
	if name, _, ok := taskstore.Metadata(string(data)); ok && name != "" {
		return name
	}
	return "session"
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
