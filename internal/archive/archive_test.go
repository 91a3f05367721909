package archive

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskloop/internal/config"
	"taskloop/internal/taskstore"
)

func archiveFixture(t *testing.T) (*Manager, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.TaskStore = filepath.Join(dir, "tasks.md")
	cfg.Paths.Memory = filepath.Join(dir, "memory.md")
	cfg.Paths.CostLedger = filepath.Join(dir, "costs.json")
	cfg.Paths.ExecutionLog = filepath.Join(dir, "execution.log")
	cfg.Paths.Feedback = filepath.Join(dir, "feedback.md")
	cfg.Paths.StateFile = filepath.Join(dir, "state.yaml")
	cfg.Paths.ArchiveRoot = filepath.Join(dir, "archives")
	cfg.Paths.TestsDir = filepath.Join(dir, "tests")
	cfg.Paths.ReusableDir = filepath.Join(dir, "tests", "reusable")

	m := NewManager(cfg, slog.New(slog.DiscardHandler))
	m.now = func() time.Time { return time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC) }
	return m, cfg
}

const storeWithMeta = `**Session**: Payment Flow
**Created**: 2026-03-01 09:30

# Tasks

- [x] **Task 1: Done**
- [ ] **Task 2: Pending**
`

func TestArchiveSnapshotsWorkingFiles(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.Memory, []byte("notes"), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ExecutionLog, []byte("log"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)

	assert.Equal(t, "Payment Flow", res.Session)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t,
		filepath.Join(cfg.Paths.ArchiveRoot, "2026", "03", "01-0930-payment-flow"),
		res.ArchivePath)

	// Copies, not moves: the live files stay.
	assert.FileExists(t, cfg.Paths.TaskStore)
	assert.FileExists(t, filepath.Join(res.ArchivePath, "tasks.md"))
	assert.FileExists(t, filepath.Join(res.ArchivePath, "memory.md"))
	assert.FileExists(t, filepath.Join(res.ArchivePath, "execution.log"))
	assert.FileExists(t, filepath.Join(res.ArchivePath, "SUMMARY.md"))
	// Missing working files are skipped without error.
	assert.NoFileExists(t, filepath.Join(res.ArchivePath, "costs.json"))
}

func TestArchivePathUniquenessSuffix(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))

	first, err := m.Archive()
	require.NoError(t, err)
	second, err := m.Archive()
	require.NoError(t, err)
	third, err := m.Archive()
	require.NoError(t, err)

	assert.NotEqual(t, first.ArchivePath, second.ArchivePath)
	assert.Equal(t, first.ArchivePath+"-2", second.ArchivePath)
	assert.Equal(t, first.ArchivePath+"-3", third.ArchivePath)
}

func TestArchiveWithoutMetadataUsesFallbacks(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte("- [ ] **Task 1: X**\n"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)
	assert.Equal(t, "session", res.Session)
	// Archive time keys the path when the store has no Created line.
	assert.Contains(t, res.ArchivePath, filepath.Join("2026", "03", "01-1405-session"))
}

func TestArchiveSortsTests(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	require.NoError(t, os.MkdirAll(cfg.Paths.TestsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.TestsDir, "verify-auth.js"), []byte("ok()"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.TestsDir, "verify-task-36-fix.js"), []byte("x()"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)

	assert.Equal(t, []string{"verify-auth.js"}, res.Reusable)
	assert.Equal(t, []string{"verify-task-36-fix.js"}, res.Archived)
	assert.FileExists(t, filepath.Join(cfg.Paths.ReusableDir, "verify-auth.js"))
	assert.FileExists(t, filepath.Join(res.ArchivePath, "tests", "verify-task-36-fix.js"))
	// Sorted scripts are removed from the working tests directory.
	assert.NoFileExists(t, filepath.Join(cfg.Paths.TestsDir, "verify-auth.js"))
	assert.NoFileExists(t, filepath.Join(cfg.Paths.TestsDir, "verify-task-36-fix.js"))
}

func TestArchiveSortsNestedTests(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	e2e := filepath.Join(cfg.Paths.TestsDir, "e2e")
	require.NoError(t, os.MkdirAll(e2e, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e2e, "check-links.py"), []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e2e, "repro-task-9.sh"), []byte("x"), 0o644))
	// Scripts already promoted to reusable stay untouched.
	require.NoError(t, os.MkdirAll(cfg.Paths.ReusableDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ReusableDir, "validate-api.sh"), []byte("keep"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)

	assert.Equal(t, []string{"check-links.py"}, res.Reusable)
	assert.Equal(t, []string{"repro-task-9.sh"}, res.Archived)
	assert.FileExists(t, filepath.Join(cfg.Paths.ReusableDir, "check-links.py"))
	assert.FileExists(t, filepath.Join(res.ArchivePath, "tests", "repro-task-9.sh"))
	assert.NoFileExists(t, filepath.Join(e2e, "check-links.py"))
	assert.FileExists(t, filepath.Join(cfg.Paths.ReusableDir, "validate-api.sh"))
}

func TestArchiveNeverOverwritesReusable(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	require.NoError(t, os.MkdirAll(cfg.Paths.ReusableDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ReusableDir, "verify-auth.js"), []byte("established"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.TestsDir, "verify-auth.js"), []byte("new version"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Paths.ReusableDir, "verify-auth.js"))
	require.NoError(t, err)
	assert.Equal(t, "established", string(data))
	// The new version still lands in the archive.
	assert.FileExists(t, filepath.Join(res.ArchivePath, "tests", "verify-auth.js"))
	assert.Empty(t, res.Reusable)
}

func TestResetRewritesTemplates(t *testing.T) {
	m, cfg := archiveFixture(t)
	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ExecutionLog, []byte("old log lines"), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.StateFile, []byte("phase: done"), 0o644))

	res, err := m.Archive()
	require.NoError(t, err)
	require.NoError(t, m.Reset(res))

	// Fresh task store parses to a single template placeholder.
	tasks, err := taskstore.Load(cfg.Paths.TaskStore)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, taskstore.IsTemplateTask(tasks[0]))

	// Memory carries the previous session forward.
	memory, err := os.ReadFile(cfg.Paths.Memory)
	require.NoError(t, err)
	assert.Contains(t, string(memory), "Payment Flow")
	assert.Contains(t, string(memory), "1/2")

	// Log truncated, state removed.
	log, err := os.ReadFile(cfg.Paths.ExecutionLog)
	require.NoError(t, err)
	assert.Empty(t, log)
	assert.NoFileExists(t, cfg.Paths.StateFile)

	// Ledger reset to the empty document.
	ledger, err := os.ReadFile(cfg.Paths.CostLedger)
	require.NoError(t, err)
	assert.Contains(t, string(ledger), `"totalCost": 0`)
}

func TestList(t *testing.T) {
	m, cfg := archiveFixture(t)

	archives, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, archives)

	require.NoError(t, os.WriteFile(cfg.Paths.TaskStore, []byte(storeWithMeta), 0o644))
	first, err := m.Archive()
	require.NoError(t, err)
	second, err := m.Archive()
	require.NoError(t, err)

	archives, err = m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{first.ArchivePath, second.ArchivePath}, archives)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "payment-flow", slugify("Payment Flow"))
	assert.Equal(t, "a-b-c", slugify("A!B@C"))
	assert.Equal(t, "", slugify("!!!"))
}
