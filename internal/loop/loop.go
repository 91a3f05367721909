// Package loop implements the task execution loop: the state machine
// that selects the next incomplete task, runs the external agent against
// it, checks the task store for the agent's completion edit, and decides
// retry versus advance versus abort.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskloop/internal/agent"
	"taskloop/internal/config"
	"taskloop/internal/errors"
	"taskloop/internal/execlog"
	"taskloop/internal/model"
	"taskloop/internal/taskstore"
)

// AgentRunner runs one agent invocation. Satisfied by *agent.Supervisor.
type AgentRunner interface {
	Run(ctx context.Context, req agent.Request) agent.Result
}

// TaskCommitter commits per-task deltas. Satisfied by *git.Manager.
type TaskCommitter interface {
	CommitTask(ctx context.Context, taskID int, title string)
}

// Loop is the golden loop. Strictly sequential: at most one agent
// invocation is in flight at any time, and the loop never writes the
// task store.
type Loop struct {
	cfg       *config.Config
	agent     AgentRunner
	committer TaskCommitter
	ledger    *Ledger
	log       *execlog.Logger
	logger    *slog.Logger
	state     *SessionState

	// attempts is loop-local and ephemeral: it is never persisted and
	// is discarded across restarts.
	attempts map[int]int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a loop bound to the session described by state.
func New(cfg *config.Config, runner AgentRunner, committer TaskCommitter, ledger *Ledger, log *execlog.Logger, state *SessionState, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		agent:     runner,
		committer: committer,
		ledger:    ledger,
		log:       log,
		logger:    logger,
		state:     state,
		attempts:  make(map[int]int),
		sleep:     sleepCtx,
	}
}

// Run drives the loop until all tasks are complete, a task exhausts its
// retry budget, the iteration cap is hit, or ctx is cancelled.
//
// A nil return means every task in the store is complete; the caller
// then triggers archive/reset.
func (l *Loop) Run(ctx context.Context) error {
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			l.log.Warnf("loop cancelled at iteration %d", iteration)
			l.setPhase(PhaseAborted)
			return err
		}

		if iteration > l.cfg.MaxIterations {
			l.log.Warnf("iteration cap (%d) reached, halting loop", l.cfg.MaxIterations)
			l.setPhase(PhaseAborted)
			return errors.ErrIterationCap(l.cfg.MaxIterations)
		}

		// SelectTask: re-parse the store every iteration; the agent's
		// file edits are observed here and nowhere else.
		l.setPhase(PhaseSelecting)
		tasks, err := taskstore.Load(l.cfg.Paths.TaskStore)
		if err != nil {
			return err
		}
		task, ok := taskstore.FirstIncomplete(tasks)
		if !ok {
			done, total := l.progress(tasks)
			l.log.Successf("all tasks complete (%d/%d)", done, total)
			l.state.update(func(d *stateData) {
				d.Phase = PhaseDone
				d.CurrentTask = 0
				d.Completed = done
				d.Total = total
			})
			return nil
		}

		if l.attempts[task.ID] >= l.cfg.MaxRetries {
			l.log.Errorf("task %d exhausted retry budget (%d attempts), aborting", task.ID, l.attempts[task.ID])
			l.setPhase(PhaseAborted)
			return errors.ErrMaxRetries(task.ID, task.Title, l.attempts[task.ID])
		}

		if err := l.runOnce(ctx, task, iteration, len(tasks)); err != nil {
			return err
		}

		// Retry and Advance both pass through the cooldown so the agent
		// and provider APIs are not hammered.
		l.setPhase(PhaseCooldown)
		if err := l.sleep(ctx, l.cfg.Cooldown); err != nil {
			l.setPhase(PhaseAborted)
			return err
		}
	}
}

// runOnce executes RunAgent and CheckCompletion for one task.
func (l *Loop) runOnce(ctx context.Context, task taskstore.Task, iteration, total int) error {
	tier := model.Select(task)
	l.log.Infof("%s %d: %s (tier %s, attempt %d/%d)",
		execlog.MarkerTaskStart, task.ID, task.Title, tier, l.attempts[task.ID]+1, l.cfg.MaxRetries)

	l.state.update(func(d *stateData) {
		d.Phase = PhaseRunning
		d.CurrentTask = task.ID
		d.Iteration = iteration
		d.Total = total
	})

	prompt, err := BuildPrompt(l.cfg.Paths.Rules, l.cfg.Paths.Memory, task)
	if err != nil {
		return errors.ErrRulesMissing(l.cfg.Paths.Rules).WithCause(err)
	}

	start := time.Now()
	result := l.agent.Run(ctx, agent.Request{Prompt: prompt, Tier: tier})

	l.recordCost(task, tier, prompt, result)

	if result.Outcome == agent.OutcomeFatal {
		l.log.Errorf("task %d invocation aborted: %s", task.ID, result.Reason)
		if err := ctx.Err(); err != nil {
			return err
		}
		// A fatal outcome without a cancelled context must still stop
		// the loop, or the task would be re-selected with no attempt
		// counted.
		return fmt.Errorf("agent invocation aborted: %s", result.Reason)
	}

	// CheckCompletion: the checkbox is ground truth. An agent that
	// exits non-zero after flipping it still succeeded; an agent that
	// exits zero without flipping it still failed.
	l.setPhase(PhaseChecking)
	tasks, err := taskstore.Load(l.cfg.Paths.TaskStore)
	if err != nil {
		return err
	}
	if taskCompleted(tasks, task.ID) {
		delete(l.attempts, task.ID)
		l.log.Successf("%s: task %d done in %s (exit %d)",
			execlog.MarkerTaskComplete, task.ID, time.Since(start).Round(time.Second), result.ExitCode)
		l.committer.CommitTask(ctx, task.ID, task.Title)
		done, totalNow := l.progress(tasks)
		l.state.update(func(d *stateData) {
			d.Completed = done
			d.Total = totalNow
			delete(d.Attempts, task.ID)
		})
		return nil
	}

	l.attempts[task.ID]++
	reason := result.Reason
	if reason == "" {
		reason = "checkbox not flipped"
	}
	l.log.Warnf("task %d not complete (%s), attempt %d/%d",
		task.ID, reason, l.attempts[task.ID], l.cfg.MaxRetries)
	l.state.update(func(d *stateData) {
		d.Attempts[task.ID] = l.attempts[task.ID]
	})
	return nil
}

func (l *Loop) recordCost(task taskstore.Task, tier model.Tier, prompt string, result agent.Result) {
	inTokens := EstimateTokens(prompt)
	outTokens := EstimateTokens(result.Output)
	entry := LedgerEntry{
		TaskID:       task.ID,
		TaskTitle:    task.Title,
		Timestamp:    time.Now().Format(time.RFC3339),
		Model:        model.ModelID(tier, l.modelOverride(tier)),
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		TotalCostUSD: EstimateCost(tier, inTokens, outTokens),
	}
	if err := l.ledger.Append(entry, l.state.Snapshot().StartedAt); err != nil {
		l.logger.Warn("cost ledger append failed", "error", err)
	}
}

// modelOverride mirrors the supervisor's per-tier override resolution
// so the ledger names the model that actually ran.
func (l *Loop) modelOverride(tier model.Tier) string {
	switch tier {
	case model.TierCheap:
		return l.cfg.Models.Cheap
	case model.TierStandard:
		return l.cfg.Models.Standard
	case model.TierPremium:
		return l.cfg.Models.Premium
	}
	return ""
}

func (l *Loop) setPhase(p Phase) {
	if err := l.state.update(func(d *stateData) { d.Phase = p }); err != nil {
		l.logger.Warn("state persist failed", "error", err)
	}
}

func (l *Loop) progress(tasks []taskstore.Task) (done, total int) {
	for _, t := range tasks {
		total++
		if t.Completed {
			done++
		}
	}
	return done, total
}

func taskCompleted(tasks []taskstore.Task, id int) bool {
	for _, t := range tasks {
		if t.ID == id && t.Completed {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
