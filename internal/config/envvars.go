package config

import (
	"os"
	"strconv"
	"time"
)

// EnvVarMapping documents the environment variables taskloop consumes and
// the config paths they override. The three *_MS durations are integers in
// milliseconds, matching the documented defaults (1,800,000 / 60,000 /
// 60,000).
var EnvVarMapping = map[string]string{
	"TASKLOOP_PROVIDER":            "provider",
	"TASKLOOP_AGENT_PATH":          "agent_path",
	"TASKLOOP_REGION":              "region",
	"TASKLOOP_MAX_OUTPUT_TOKENS":   "max_output_tokens",
	"TASKLOOP_MAX_THINKING_TOKENS": "max_thinking_tokens",
	"TASKLOOP_MAX_RETRIES":         "max_retries",
	"TASKLOOP_MAX_ITERATIONS":      "max_iterations",
	"TASKLOOP_TRUNK_BRANCH":        "trunk_branch",
	"TASKLOOP_TASK_TIMEOUT_MS":     "task_timeout",
	"TASKLOOP_GIT_TIMEOUT_MS":      "git_timeout",
	"TASKLOOP_HEARTBEAT_MS":        "heartbeat_interval",
}

// ApplyEnvVars applies environment variable overrides to cfg.
func ApplyEnvVars(cfg *Config) {
	if v := os.Getenv("TASKLOOP_PROVIDER"); v != "" {
		cfg.Provider = ProviderMode(v)
	}
	if v := os.Getenv("TASKLOOP_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("TASKLOOP_REGION"); v != "" {
		cfg.Region = v
	}
	if n, ok := envInt("TASKLOOP_MAX_OUTPUT_TOKENS"); ok {
		cfg.MaxOutputTokens = n
	}
	if n, ok := envInt("TASKLOOP_MAX_THINKING_TOKENS"); ok {
		cfg.MaxThinkingTokens = n
	}
	if n, ok := envInt("TASKLOOP_MAX_RETRIES"); ok {
		cfg.MaxRetries = n
	}
	if n, ok := envInt("TASKLOOP_MAX_ITERATIONS"); ok {
		cfg.MaxIterations = n
	}
	if v := os.Getenv("TASKLOOP_TRUNK_BRANCH"); v != "" {
		cfg.TrunkBranch = v
	}
	if d, ok := envMillis("TASKLOOP_TASK_TIMEOUT_MS"); ok {
		cfg.TaskTimeout = d
	}
	if d, ok := envMillis("TASKLOOP_GIT_TIMEOUT_MS"); ok {
		cfg.GitTimeout = d
	}
	if d, ok := envMillis("TASKLOOP_HEARTBEAT_MS"); ok {
		cfg.HeartbeatInterval = d
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envMillis(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
