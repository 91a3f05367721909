package git

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner replays canned responses keyed by the joined command line.
type fakeRunner struct {
	responses map[string]fakeResponse
	calls     []string
}

type fakeResponse struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (f *fakeRunner) on(cmdline, out string, err error) {
	f.responses[cmdline] = fakeResponse{out: out, err: err}
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmdline)
	if r, ok := f.responses[cmdline]; ok {
		return r.out, r.err
	}
	return "", nil
}

func (f *fakeRunner) called(cmdline string) bool {
	for _, c := range f.calls {
		if c == cmdline {
			return true
		}
	}
	return false
}

func TestCurrentBranch(t *testing.T) {
	r := newFakeRunner()
	r.on("git rev-parse --abbrev-ref HEAD", "main", nil)

	branch, err := New(".", r).CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestIsClean(t *testing.T) {
	r := newFakeRunner()
	r.on("git status --porcelain", "", nil)
	clean, err := New(".", r).IsClean(context.Background())
	require.NoError(t, err)
	assert.True(t, clean)

	r.on("git status --porcelain", " M internal/app.go", nil)
	clean, err = New(".", r).IsClean(context.Background())
	require.NoError(t, err)
	assert.False(t, clean)
}

func TestHasStagedChanges(t *testing.T) {
	// Exit zero means nothing staged.
	r := newFakeRunner()
	staged, err := New(".", r).HasStagedChanges(context.Background())
	require.NoError(t, err)
	assert.False(t, staged)

	// Non-zero exit means staged changes.
	r.on("git diff --cached --quiet", "", &CommandError{Command: "git", Err: assert.AnError})
	staged, err = New(".", r).HasStagedChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, staged)

	// A timeout is an error, not a staged signal.
	r.on("git diff --cached --quiet", "", &CommandError{Command: "git", TimedOut: true, Err: assert.AnError})
	_, err = New(".", r).HasStagedChanges(context.Background())
	assert.Error(t, err)
}

func TestAheadCount(t *testing.T) {
	r := newFakeRunner()
	r.on("git rev-list --count main..HEAD", "3", nil)

	n, err := New(".", r).AheadCount(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	r.on("git rev-list --count main..HEAD", "not-a-number", nil)
	_, err = New(".", r).AheadCount(context.Background(), "main")
	assert.Error(t, err)
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{Output: "fatal: not a git repository"}
	assert.Equal(t, "fatal: not a git repository", err.Error())

	err = &CommandError{Err: assert.AnError}
	assert.Equal(t, assert.AnError.Error(), err.Error())
}
