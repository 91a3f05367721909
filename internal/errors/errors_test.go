package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := &LoopError{What: "it broke", Why: "disk full"}
	assert.Equal(t, "it broke: disk full", err.Error())

	err = err.WithCause(fmt.Errorf("write /tmp/x: no space"))
	assert.Equal(t, "it broke: disk full: write /tmp/x: no space", err.Error())
}

func TestUserMessage(t *testing.T) {
	msg := ErrMaxRetries(3, "Fix header", 5).UserMessage()
	assert.Contains(t, msg, "Error: task 3 (Fix header) failed after 5 attempts")
	assert.Contains(t, msg, "Why:")
	assert.Contains(t, msg, "Fix:")
	assert.Contains(t, msg, "taskloop diagnose")
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrTaskStoreMissing("tasks.md"))
	assert.True(t, stderrors.Is(err, &LoopError{Code: CodeTaskStoreMissing}))
	assert.False(t, stderrors.Is(err, &LoopError{Code: CodeRulesMissing}))
}

func TestAsLoopError(t *testing.T) {
	inner := ErrGitSetupFailed(fmt.Errorf("boom"))
	wrapped := fmt.Errorf("context: %w", inner)

	le := AsLoopError(wrapped)
	require.NotNil(t, le)
	assert.Equal(t, CodeGitSetupFailed, le.Code)

	assert.Nil(t, AsLoopError(fmt.Errorf("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ErrArchiveFailed(cause)
	assert.ErrorIs(t, err, cause)
}

func TestConstructorCodes(t *testing.T) {
	tests := []struct {
		err  *LoopError
		code Code
	}{
		{ErrTaskStoreMissing("tasks.md"), CodeTaskStoreMissing},
		{ErrRulesMissing("RULES.md"), CodeRulesMissing},
		{ErrCredentialsMissing("direct", "ANTHROPIC_API_KEY"), CodeCredentialsMissing},
		{ErrMaxRetries(1, "t", 5), CodeMaxRetries},
		{ErrIterationCap(100), CodeIterationCap},
		{ErrAgentTimeout("30m"), CodeAgentTimeout},
		{ErrAgentUnavailable("claude"), CodeAgentUnavailable},
		{ErrGitSetupFailed(nil), CodeGitSetupFailed},
		{ErrArchiveFailed(nil), CodeArchiveFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
	}
}
