package postmortem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completedLog = `2026-03-01T10:00:00Z [INFO] starting task 1: Add login form (tier cheap, attempt 1/5)
2026-03-01T10:00:01Z [INFO] spawning agent (model claude-3-5-haiku-latest, tier cheap)
2026-03-01T10:03:30Z [SUCCESS] task complete: task 1 done in 3m29s (exit 0)
`

const hungTimeoutLog = `2026-03-01T10:00:00Z [INFO] starting task 2: Refactor parser (tier standard, attempt 1/5)
2026-03-01T10:00:01Z [INFO] spawning agent (model claude-sonnet-4-20250514, tier standard)
2026-03-01T10:30:01Z [ERROR] hard timeout after 30m0s, terminating agent
`

const hungGitLog = `2026-03-01T10:00:00Z [INFO] starting task 3: Wire API (tier standard, attempt 1/5)
2026-03-01T10:00:01Z [INFO] spawning agent (model claude-sonnet-4-20250514, tier standard)
2026-03-01T10:05:00Z [WARN] git command timed out during per-task commit: deadline exceeded
`

const neverStartedLog = `2026-03-01T10:00:00Z [INFO] starting task 4: Ghost task (tier cheap, attempt 1/5)
`

func TestAnalyzeCompletedTask(t *testing.T) {
	report := Analyze(completedLog)
	require.Len(t, report.Tasks, 1)

	task := report.Tasks[0]
	assert.Equal(t, 1, task.ID)
	assert.Equal(t, "Add login form", task.Title)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, 3*time.Minute+30*time.Second, task.Duration)
}

func TestAnalyzeHungHardTimeout(t *testing.T) {
	report := Analyze(hungTimeoutLog)
	require.Len(t, report.Tasks, 1)

	task := report.Tasks[0]
	assert.Equal(t, StatusHung, task.Status)
	assert.Equal(t, CauseHardTimeout, task.Cause)
}

func TestAnalyzeHungGitTimeout(t *testing.T) {
	report := Analyze(hungGitLog)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, StatusHung, report.Tasks[0].Status)
	assert.Equal(t, CauseGitTimeout, report.Tasks[0].Cause)
}

func TestAnalyzeNeverStarted(t *testing.T) {
	report := Analyze(neverStartedLog)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, StatusNeverStarted, report.Tasks[0].Status)
}

func TestAnalyzeRetriesCounted(t *testing.T) {
	log := `2026-03-01T10:00:00Z [INFO] starting task 5: Flaky (tier cheap, attempt 1/5)
2026-03-01T10:00:01Z [INFO] spawning agent (model m, tier cheap)
2026-03-01T10:02:00Z [WARN] task 5 not complete (agent exited 1), attempt 1/5
2026-03-01T10:02:05Z [INFO] starting task 5: Flaky (tier cheap, attempt 2/5)
2026-03-01T10:02:06Z [INFO] spawning agent (model m, tier cheap)
2026-03-01T10:04:05Z [SUCCESS] task complete: task 5 done in 1m59s (exit 0)
`
	report := Analyze(log)
	require.Len(t, report.Tasks, 1)

	task := report.Tasks[0]
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 2, task.Attempts)
	// Duration measures from the last start, not the first.
	assert.Equal(t, 2*time.Minute, task.Duration)
}

func TestAnalyzeMarkersAttachToCurrentTask(t *testing.T) {
	// The hard timeout between task 1's window and task 2's start must
	// attribute to task 1, not task 2.
	log := `2026-03-01T10:00:00Z [INFO] starting task 1: Slow (tier cheap, attempt 1/5)
2026-03-01T10:00:01Z [INFO] spawning agent (model m, tier cheap)
2026-03-01T10:30:01Z [ERROR] hard timeout after 30m0s, terminating agent
2026-03-01T10:30:10Z [INFO] starting task 2: Fast (tier cheap, attempt 1/5)
2026-03-01T10:30:11Z [INFO] spawning agent (model m, tier cheap)
2026-03-01T10:31:00Z [SUCCESS] task complete: task 2 done in 49s (exit 0)
`
	report := Analyze(log)
	require.Len(t, report.Tasks, 2)

	assert.Equal(t, StatusHung, report.Tasks[0].Status)
	assert.Equal(t, CauseHardTimeout, report.Tasks[0].Cause)
	assert.Equal(t, StatusCompleted, report.Tasks[1].Status)
	assert.Equal(t, CauseNone, report.Tasks[1].Cause)
}

func TestAnalyzeIgnoresRawAgentOutput(t *testing.T) {
	log := completedLog + "raw agent chatter without a timestamp\nmore noise\n"
	report := Analyze(log)
	assert.Equal(t, 3, report.ParsedLines)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, StatusCompleted, report.Tasks[0].Status)
}

func TestAnalyzeEmptyLog(t *testing.T) {
	report := Analyze("")
	assert.Empty(t, report.Tasks)
	assert.Contains(t, report.Render(), "No task activity")
}

func TestRender(t *testing.T) {
	out := Analyze(hungTimeoutLog).Render()
	assert.Contains(t, out, "task 2 (Refactor parser)")
	assert.Contains(t, out, "HUNG")
	assert.Contains(t, out, "hard-timeout")
}
