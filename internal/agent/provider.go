// Package agent supervises invocations of the external coding agent.
package agent

import (
	"fmt"
	"os"
	"strings"

	"taskloop/internal/config"
	"taskloop/internal/errors"
)

// providerEnvVars is every credential/selection variable any provider mode
// can set. All of them are cleared from the child environment before the
// active mode's variables are applied, so stale credentials from a
// previous invocation never bleed into the next one.
var providerEnvVars = []string{
	"CLAUDE_CODE_USE_BEDROCK",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AWS_REGION",
	"ANTHROPIC_API_KEY",
}

// Provider is the resolved credential configuration for agent spawns.
// Exactly one mode is active; every component that spawns the agent
// consumes this single resolution instead of re-deriving it.
type Provider struct {
	Mode   config.ProviderMode
	Region string

	// Enterprise mode credentials.
	accessKeyID     string
	secretAccessKey string
	sessionToken    string

	// Direct mode credential.
	apiKey string
}

// ResolveProvider validates that the selected mode's credentials are
// present and returns the provider configuration. Credentials are read
// from the parent environment only; they are never passed on command
// lines.
func ResolveProvider(cfg *config.Config) (*Provider, error) {
	p := &Provider{Mode: cfg.Provider, Region: cfg.Region}

	switch cfg.Provider {
	case config.ProviderEnterprise:
		p.accessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
		p.secretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		p.sessionToken = os.Getenv("AWS_SESSION_TOKEN")
		var missing []string
		if p.accessKeyID == "" {
			missing = append(missing, "AWS_ACCESS_KEY_ID")
		}
		if p.secretAccessKey == "" {
			missing = append(missing, "AWS_SECRET_ACCESS_KEY")
		}
		if len(missing) > 0 {
			return nil, errors.ErrCredentialsMissing(string(cfg.Provider), strings.Join(missing, ", "))
		}
	case config.ProviderDirect:
		p.apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if p.apiKey == "" {
			return nil, errors.ErrCredentialsMissing(string(cfg.Provider), "ANTHROPIC_API_KEY")
		}
	case config.ProviderAmbient:
		// The agent's own subscription login; no explicit credentials.
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.Provider)
	}

	return p, nil
}

// Env builds the child process environment: the parent environment with
// every provider variable stripped, then only the active mode's variables
// plus the model/limit parameters appended.
func (p *Provider) Env(base []string, modelID string, maxOutputTokens, maxThinkingTokens int) []string {
	env := make([]string, 0, len(base)+8)
	for _, kv := range base {
		if isProviderVar(kv) {
			continue
		}
		env = append(env, kv)
	}

	switch p.Mode {
	case config.ProviderEnterprise:
		env = append(env,
			"CLAUDE_CODE_USE_BEDROCK=1",
			"AWS_ACCESS_KEY_ID="+p.accessKeyID,
			"AWS_SECRET_ACCESS_KEY="+p.secretAccessKey,
			"AWS_REGION="+p.Region,
		)
		if p.sessionToken != "" {
			env = append(env, "AWS_SESSION_TOKEN="+p.sessionToken)
		}
	case config.ProviderDirect:
		env = append(env, "ANTHROPIC_API_KEY="+p.apiKey)
	}

	if modelID != "" {
		env = append(env, "ANTHROPIC_MODEL="+modelID)
	}
	if maxOutputTokens > 0 {
		env = append(env, fmt.Sprintf("CLAUDE_CODE_MAX_OUTPUT_TOKENS=%d", maxOutputTokens))
	}
	if maxThinkingTokens > 0 {
		env = append(env, fmt.Sprintf("MAX_THINKING_TOKENS=%d", maxThinkingTokens))
	}

	return env
}

func isProviderVar(kv string) bool {
	name, _, ok := strings.Cut(kv, "=")
	if !ok {
		return false
	}
	for _, v := range providerEnvVars {
		if name == v {
			return true
		}
	}
	return false
}
