package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "claude", cfg.AgentPath)
	assert.Equal(t, ProviderAmbient, cfg.Provider)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.MaxIterations)
	assert.Equal(t, 5*time.Second, cfg.Cooldown)
	assert.Equal(t, 30*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, time.Minute, cfg.GitTimeout)
	assert.Equal(t, time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.SilenceWarning)
	assert.Equal(t, "main", cfg.TrunkBranch)

	assert.Equal(t, "tasks.md", cfg.Paths.TaskStore)
	assert.Equal(t, "RULES.md", cfg.Paths.Rules)
	assert.Equal(t, "memory.md", cfg.Paths.Memory)
	assert.Equal(t, "costs.json", cfg.Paths.CostLedger)
	assert.Equal(t, "execution.log", cfg.Paths.ExecutionLog)
	assert.Equal(t, "state.yaml", cfg.Paths.StateFile)
	assert.Equal(t, "archives", cfg.Paths.ArchiveRoot)
	assert.Equal(t, "tests/reusable", cfg.Paths.ReusableDir)
}

func TestApplyEnvVars(t *testing.T) {
	t.Setenv("TASKLOOP_PROVIDER", "direct")
	t.Setenv("TASKLOOP_AGENT_PATH", "/opt/agent")
	t.Setenv("TASKLOOP_REGION", "eu-central-1")
	t.Setenv("TASKLOOP_MAX_RETRIES", "2")
	t.Setenv("TASKLOOP_MAX_ITERATIONS", "40")
	t.Setenv("TASKLOOP_TRUNK_BRANCH", "develop")
	t.Setenv("TASKLOOP_TASK_TIMEOUT_MS", "1800000")
	t.Setenv("TASKLOOP_GIT_TIMEOUT_MS", "60000")
	t.Setenv("TASKLOOP_HEARTBEAT_MS", "30000")

	cfg := Default()
	ApplyEnvVars(cfg)

	assert.Equal(t, ProviderDirect, cfg.Provider)
	assert.Equal(t, "/opt/agent", cfg.AgentPath)
	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 40, cfg.MaxIterations)
	assert.Equal(t, "develop", cfg.TrunkBranch)
	assert.Equal(t, 30*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, time.Minute, cfg.GitTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
}

func TestApplyEnvVarsIgnoresInvalid(t *testing.T) {
	t.Setenv("TASKLOOP_MAX_RETRIES", "not-a-number")
	t.Setenv("TASKLOOP_TASK_TIMEOUT_MS", "-5")

	cfg := Default()
	ApplyEnvVars(cfg)

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.TaskTimeout)
}

func TestEnvVarMappingCovered(t *testing.T) {
	// Every documented variable has an entry; this catches doc drift.
	for _, key := range []string{
		"TASKLOOP_PROVIDER",
		"TASKLOOP_AGENT_PATH",
		"TASKLOOP_MAX_RETRIES",
		"TASKLOOP_TASK_TIMEOUT_MS",
		"TASKLOOP_GIT_TIMEOUT_MS",
		"TASKLOOP_HEARTBEAT_MS",
	} {
		assert.Contains(t, EnvVarMapping, key)
	}
}
