package agent

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskloop/internal/config"
	"taskloop/internal/execlog"
	"taskloop/internal/model"
)

// writeAgentScript installs a fake agent binary for the test.
func writeAgentScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-agent.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testSupervisor(t *testing.T, agentPath string, taskTimeout time.Duration) *Supervisor {
	t.Helper()
	cfg := config.Default()
	cfg.AgentPath = agentPath
	cfg.TaskTimeout = taskTimeout
	cfg.HeartbeatInterval = 0

	logger := slog.New(slog.DiscardHandler)
	xlog := execlog.New(filepath.Join(t.TempDir(), "execution.log"), logger)
	provider := &Provider{Mode: config.ProviderAmbient}
	s := NewSupervisor(cfg, provider, xlog, logger)
	s.graceTimeout = 200 * time.Millisecond
	return s
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	agent := writeAgentScript(t, dir, `echo "working on $1"; exit 0`)
	s := testSupervisor(t, agent, 10*time.Second)

	res := s.Run(context.Background(), Request{Prompt: "do the thing", Tier: model.TierCheap})

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "working on")
}

func TestRunNonZeroExitIsRetryable(t *testing.T) {
	dir := t.TempDir()
	agent := writeAgentScript(t, dir, `echo "boom" >&2; exit 3`)
	s := testSupervisor(t, agent, 10*time.Second)

	res := s.Run(context.Background(), Request{Prompt: "p", Tier: model.TierCheap})

	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "boom")
}

func TestRunSpawnFailureIsRetryable(t *testing.T) {
	s := testSupervisor(t, filepath.Join(t.TempDir(), "no-such-agent"), 10*time.Second)

	res := s.Run(context.Background(), Request{Prompt: "p", Tier: model.TierCheap})

	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Reason, "spawn agent")
}

func TestRunHardTimeout(t *testing.T) {
	dir := t.TempDir()
	agent := writeAgentScript(t, dir, `sleep 30`)
	s := testSupervisor(t, agent, 300*time.Millisecond)

	start := time.Now()
	res := s.Run(context.Background(), Request{Prompt: "p", Tier: model.TierCheap})

	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.Contains(t, res.Reason, "hard timeout")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCancellationIsFatal(t *testing.T) {
	dir := t.TempDir()
	agent := writeAgentScript(t, dir, `sleep 30`)
	s := testSupervisor(t, agent, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := s.Run(ctx, Request{Prompt: "p", Tier: model.TierCheap})

	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Equal(t, "interrupted", res.Reason)
}

func TestPromptFileCleanedUp(t *testing.T) {
	dir := t.TempDir()
	agent := writeAgentScript(t, dir, `exit 0`)
	s := testSupervisor(t, agent, 10*time.Second)

	s.Run(context.Background(), Request{Prompt: "p", Tier: model.TierCheap})

	leftovers, err := filepath.Glob("prompt-*.tmp")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPromptDeliveredViaFileNotArgv(t *testing.T) {
	dir := t.TempDir()
	// The agent receives a file path, never the prompt text itself.
	agent := writeAgentScript(t, dir, `cat "$1"`)
	s := testSupervisor(t, agent, 10*time.Second)

	secret := "prompt-with-sensitive-content"
	res := s.Run(context.Background(), Request{Prompt: secret, Tier: model.TierCheap})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, res.Output, secret)
}
