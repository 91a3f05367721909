// Package config provides configuration for taskloop.
//
// Configuration is resolved from three layers, later layers overriding
// earlier ones: built-in defaults, the project config file
// (.taskloop.yaml), and TASKLOOP_* environment variables.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the project config file searched in the working directory.
const ConfigFileName = ".taskloop.yaml"

// ProviderMode selects how the external agent is given credentials.
// Exactly one mode is active per invocation.
type ProviderMode string

const (
	// ProviderEnterprise routes the agent through an enterprise-hosted model
	// (Bedrock) using AWS credentials.
	ProviderEnterprise ProviderMode = "enterprise"
	// ProviderDirect uses a direct API key.
	ProviderDirect ProviderMode = "direct"
	// ProviderAmbient uses the agent's own ambient subscription login,
	// with no explicit credentials at all.
	ProviderAmbient ProviderMode = "ambient"
)

// Config holds the full taskloop configuration.
type Config struct {
	// AgentPath is the external coding agent binary.
	AgentPath string `mapstructure:"agent_path"`

	// Provider selects the credential mode for agent invocations.
	Provider ProviderMode `mapstructure:"provider"`

	// Region for enterprise-hosted models.
	Region string `mapstructure:"region"`

	// Model overrides per tier. Empty entries fall back to built-ins.
	Models ModelConfig `mapstructure:"models"`

	// MaxOutputTokens caps agent output tokens (passed via environment).
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
	// MaxThinkingTokens caps the agent's reasoning budget.
	MaxThinkingTokens int `mapstructure:"max_thinking_tokens"`

	// MaxRetries is the per-task retry budget.
	MaxRetries int `mapstructure:"max_retries"`
	// MaxIterations is the global loop iteration cap.
	MaxIterations int `mapstructure:"max_iterations"`
	// Cooldown is the delay between loop iterations.
	Cooldown time.Duration `mapstructure:"cooldown"`

	// TaskTimeout is the hard wall-clock timeout per agent invocation.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// GitTimeout bounds each individual git command.
	GitTimeout time.Duration `mapstructure:"git_timeout"`
	// HeartbeatInterval is how often liveness is checked during an invocation.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// SilenceWarning is how long the agent may be silent before a WARN is logged.
	SilenceWarning time.Duration `mapstructure:"silence_warning"`

	// TrunkBranch is the branch sessions start from and return to.
	TrunkBranch string `mapstructure:"trunk_branch"`

	// Paths holds the working-file layout. All paths are relative to the
	// project root unless absolute.
	Paths Paths `mapstructure:"paths"`
}

// ModelConfig holds per-tier model identifiers.
type ModelConfig struct {
	Cheap    string `mapstructure:"cheap"`
	Standard string `mapstructure:"standard"`
	Premium  string `mapstructure:"premium"`
}

// Paths holds the fixed working-file layout.
type Paths struct {
	TaskStore    string `mapstructure:"task_store"`
	Rules        string `mapstructure:"rules"`
	Memory       string `mapstructure:"memory"`
	CostLedger   string `mapstructure:"cost_ledger"`
	ExecutionLog string `mapstructure:"execution_log"`
	Feedback     string `mapstructure:"feedback"`
	StateFile    string `mapstructure:"state_file"`
	ArchiveRoot  string `mapstructure:"archive_root"`
	TestsDir     string `mapstructure:"tests_dir"`
	ReusableDir  string `mapstructure:"reusable_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AgentPath:         "claude",
		Provider:          ProviderAmbient,
		Region:            "us-east-1",
		MaxOutputTokens:   32000,
		MaxThinkingTokens: 8000,
		MaxRetries:        5,
		MaxIterations:     100,
		Cooldown:          5 * time.Second,
		TaskTimeout:       30 * time.Minute,
		GitTimeout:        time.Minute,
		HeartbeatInterval: time.Minute,
		SilenceWarning:    5 * time.Minute,
		TrunkBranch:       "main",
		Paths: Paths{
			TaskStore:    "tasks.md",
			Rules:        "RULES.md",
			Memory:       "memory.md",
			CostLedger:   "costs.json",
			ExecutionLog: "execution.log",
			Feedback:     "feedback.md",
			StateFile:    "state.yaml",
			ArchiveRoot:  "archives",
			TestsDir:     "tests",
			ReusableDir:  "tests/reusable",
		},
	}
}

// Load resolves configuration from defaults, the project config file, and
// environment variables. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(ConfigFileName)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		// Only the file being absent is tolerated.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, err
		}
	}

	v.SetEnvPrefix("TASKLOOP")
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	ApplyEnvVars(cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("agent_path", d.AgentPath)
	v.SetDefault("provider", string(d.Provider))
	v.SetDefault("region", d.Region)
	v.SetDefault("max_output_tokens", d.MaxOutputTokens)
	v.SetDefault("max_thinking_tokens", d.MaxThinkingTokens)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("max_iterations", d.MaxIterations)
	v.SetDefault("cooldown", d.Cooldown)
	v.SetDefault("task_timeout", d.TaskTimeout)
	v.SetDefault("git_timeout", d.GitTimeout)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("silence_warning", d.SilenceWarning)
	v.SetDefault("trunk_branch", d.TrunkBranch)
	v.SetDefault("paths.task_store", d.Paths.TaskStore)
	v.SetDefault("paths.rules", d.Paths.Rules)
	v.SetDefault("paths.memory", d.Paths.Memory)
	v.SetDefault("paths.cost_ledger", d.Paths.CostLedger)
	v.SetDefault("paths.execution_log", d.Paths.ExecutionLog)
	v.SetDefault("paths.feedback", d.Paths.Feedback)
	v.SetDefault("paths.state_file", d.Paths.StateFile)
	v.SetDefault("paths.archive_root", d.Paths.ArchiveRoot)
	v.SetDefault("paths.tests_dir", d.Paths.TestsDir)
	v.SetDefault("paths.reusable_dir", d.Paths.ReusableDir)
}
