// Package archive rotates session state: it snapshots working files into
// an immutable dated archive, classifies produced test scripts, writes a
// summary, and resets the live files to fresh templates.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taskloop/internal/config"
	"taskloop/internal/errors"
	"taskloop/internal/loop"
	"taskloop/internal/taskstore"
)

// Manager performs the archive/reset protocol.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an archive manager.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger, now: time.Now}
}

// Result describes a completed archive operation.
type Result struct {
	Session     string
	ArchivePath string
	Completed   int
	Total       int
	Reusable    []string
	Archived    []string
}

// Archive snapshots the session's working files into a new archive
// directory and classifies test scripts. The live files are left in
// place; call Reset afterwards to rotate them.
func (m *Manager) Archive() (*Result, error) {
	storeText := ""
	if data, err := os.ReadFile(m.cfg.Paths.TaskStore); err == nil {
		storeText = string(data)
	}

	session, created := m.sessionIdentity(storeText)
	dir, err := m.derivePath(session, created)
	if err != nil {
		return nil, errors.ErrArchiveFailed(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.ErrArchiveFailed(err)
	}

	// Snapshot: copy, never move. Missing files are skipped.
	for _, src := range []string{
		m.cfg.Paths.TaskStore,
		m.cfg.Paths.Memory,
		m.cfg.Paths.CostLedger,
		m.cfg.Paths.ExecutionLog,
		m.cfg.Paths.Feedback,
	} {
		if err := copyIfExists(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return nil, errors.ErrArchiveFailed(err)
		}
	}

	res := &Result{Session: session, ArchivePath: dir}
	res.Completed, res.Total = taskstore.CountCheckboxes(storeText)

	if err := m.sortTests(dir, res); err != nil {
		// Test sorting is best effort; the snapshot is already safe.
		m.logger.Warn("test classification failed", "error", err)
	}

	if err := m.writeSummary(dir, res); err != nil {
		m.logger.Warn("summary generation failed", "error", err)
	}

	m.logger.Info("session archived", "session", session, "path", dir)
	return res, nil
}

// Reset rewrites the live working files to fresh templates. The memory
// template carries a short summary of the archived session forward.
func (m *Manager) Reset(prev *Result) error {
	now := m.now()

	writes := map[string]string{
		m.cfg.Paths.TaskStore:  taskStoreTemplate(now),
		m.cfg.Paths.Feedback:   feedbackTemplate,
		m.cfg.Paths.CostLedger: ledgerTemplate,
	}
	if prev != nil {
		writes[m.cfg.Paths.Memory] = memoryTemplate(prev.Session, prev.Completed, prev.Total, prev.ArchivePath)
	} else {
		writes[m.cfg.Paths.Memory] = memoryTemplate("(none)", 0, 0, "(none)")
	}

	for path, content := range writes {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("reset %s: %w", path, err)
		}
	}

	// Truncate rather than delete so an open log handle keeps working.
	if err := os.WriteFile(m.cfg.Paths.ExecutionLog, nil, 0o644); err != nil {
		return fmt.Errorf("truncate execution log: %w", err)
	}
	os.Remove(m.cfg.Paths.StateFile)

	// Leftover prompt temp files from interrupted runs.
	if tmps, err := filepath.Glob("prompt-*.tmp"); err == nil {
		for _, t := range tmps {
			os.Remove(t)
		}
	}

	m.logger.Info("working files reset")
	return nil
}

// List returns existing archive paths, newest-last by path order
// (year/month/day sorting falls out of the layout).
func (m *Manager) List() ([]string, error) {
	root := m.cfg.Paths.ArchiveRoot
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var archives []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// Archives live exactly three levels below the root.
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if len(strings.Split(rel, string(filepath.Separator))) == 3 {
			archives = append(archives, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(archives)
	return archives, nil
}

// sessionIdentity reads the session name and creation time from the task
// store metadata, falling back to defaults when absent.
func (m *Manager) sessionIdentity(storeText string) (string, time.Time) {
	session, created, ok := taskstore.Metadata(storeText)
	if !ok || session == "" {
		session = "session"
	}
	if created.IsZero() {
		// Archive keyed by archive time only when the store never said
		// when the work began.
		created = m.now()
	}
	return session, created
}

// derivePath builds the year/month/day-hhmm-slug archive path, suffixing
// a counter until unique.
func (m *Manager) derivePath(session string, created time.Time) (string, error) {
	slug := slugify(session)
	base := filepath.Join(
		m.cfg.Paths.ArchiveRoot,
		fmt.Sprintf("%04d", created.Year()),
		fmt.Sprintf("%02d", int(created.Month())),
		fmt.Sprintf("%02d-%02d%02d-%s", created.Day(), created.Hour(), created.Minute(), slug),
	)

	dir := base
	for n := 2; ; n++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return dir, nil
		}
		if n > 1000 {
			return "", fmt.Errorf("cannot find unique archive path for %s", base)
		}
		dir = fmt.Sprintf("%s-%d", base, n)
	}
}

// sortTests classifies every script in the working tests directory and
// moves it to either the persistent reusable directory or the archive's
// tests subdirectory.
func (m *Manager) sortTests(archiveDir string, res *Result) error {
	scripts, err := findTestScripts(m.cfg.Paths.TestsDir, m.cfg.Paths.ReusableDir)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return nil
	}

	archiveTests := filepath.Join(archiveDir, "tests")

	for _, script := range scripts {
		content, err := os.ReadFile(script)
		if err != nil {
			m.logger.Warn("skipping unreadable test script", "path", script, "error", err)
			continue
		}

		switch ClassifyTest(script, content) {
		case ClassReusable:
			if err := os.MkdirAll(m.cfg.Paths.ReusableDir, 0o755); err != nil {
				return err
			}
			dst := filepath.Join(m.cfg.Paths.ReusableDir, filepath.Base(script))
			if _, err := os.Stat(dst); err == nil {
				// Never overwrite an established reusable script.
				m.logger.Info("reusable test already exists, leaving archive copy only", "name", filepath.Base(script))
				if err := copyFile(script, filepath.Join(archiveTests, filepath.Base(script))); err != nil {
					return err
				}
			} else {
				if err := copyFile(script, dst); err != nil {
					return err
				}
				res.Reusable = append(res.Reusable, filepath.Base(script))
			}
		case ClassSessionSpecific:
			if err := copyFile(script, filepath.Join(archiveTests, filepath.Base(script))); err != nil {
				return err
			}
			res.Archived = append(res.Archived, filepath.Base(script))
		}

		os.Remove(script)
	}
	return nil
}

// writeSummary appends the generated human-readable summary to the
// archive. This is the only write ever made to an archive after
// creation.
func (m *Manager) writeSummary(dir string, res *Result) error {
	ledger := loop.NewLedger(filepath.Join(dir, filepath.Base(m.cfg.Paths.CostLedger))).Read()

	tierCounts := make(map[string]int)
	for _, e := range ledger.Tasks {
		tierCounts[e.Model]++
	}
	models := make([]string, 0, len(tierCounts))
	for name := range tierCounts {
		models = append(models, name)
	}
	sort.Strings(models)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session Summary: %s\n\n", res.Session)
	fmt.Fprintf(&sb, "- Tasks: %d/%d complete\n", res.Completed, res.Total)
	fmt.Fprintf(&sb, "- Total cost: $%.4f\n", ledger.Session.TotalCost)
	if len(models) > 0 {
		sb.WriteString("- Model usage:\n")
		for _, name := range models {
			fmt.Fprintf(&sb, "  - %s: %d invocation(s)\n", name, tierCounts[name])
		}
	}
	if len(res.Reusable) > 0 {
		fmt.Fprintf(&sb, "- Promoted reusable tests: %s\n", strings.Join(res.Reusable, ", "))
	}
	if len(res.Archived) > 0 {
		fmt.Fprintf(&sb, "- Archived session tests: %s\n", strings.Join(res.Archived, ", "))
	}

	return os.WriteFile(filepath.Join(dir, "SUMMARY.md"), []byte(sb.String()), 0o644)
}

func slugify(name string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(sb.String(), "-")
}

func copyIfExists(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
