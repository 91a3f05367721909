// Package taskstore parses the markdown task-store document.
//
// The document is the single source of task truth. It is re-read on every
// loop iteration because the external agent mutates it in place; nothing in
// this package ever writes it.
package taskstore

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Task is one checklist item from the task store.
type Task struct {
	// ID is the author-assigned task number. Advisory only: execution
	// order is document order, not ID order.
	ID int
	// Title is the task title with any bracketed complexity tag folded in.
	Title string
	// Completed reflects the checkbox marker, the sole completion signal.
	Completed bool
	// Details holds the indented lines following the task line, verbatim.
	Details []string
	// Line is the 1-based line number of the task line in the document.
	Line int
}

// DetailText returns the detail block joined into a single string.
func (t Task) DetailText() string {
	return strings.Join(t.Details, "\n")
}

// taskLinePattern matches a checklist task line:
//
//	- [ ] **Task 12: Add login form** [COMPLEX]
//
// The checkbox is case-insensitive; the bracketed tag is optional.
var taskLinePattern = regexp.MustCompile(`^- \[([ xX])\] \*\*Task (\d+): (.+?)\*\*(?:\s*(\[[A-Z]+\]))?\s*$`)

// Parse extracts the ordered task sequence from document text.
// Document order is preserved; malformed task lines are skipped.
func Parse(text string) []Task {
	var tasks []Task
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		m := taskLinePattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}

		id, err := strconv.Atoi(m[2])
		if err != nil || id <= 0 {
			continue
		}

		title := strings.TrimSpace(m[3])
		if tag := m[4]; tag != "" {
			// Fold the tag into the in-memory title so downstream
			// matching sees it without re-locating it in the document.
			title = title + " " + tag
		}

		task := Task{
			ID:        id,
			Title:     title,
			Completed: m[1] == "x" || m[1] == "X",
			Line:      i + 1,
		}

		// Accumulate the indented detail block.
		for i+1 < len(lines) && isDetailLine(lines[i+1]) {
			i++
			task.Details = append(task.Details, lines[i])
		}

		tasks = append(tasks, task)
	}

	return tasks
}

// isDetailLine reports whether a line belongs to the preceding task's
// detail block. Any non-indented line, including a blank one, terminates
// the block.
func isDetailLine(line string) bool {
	if line == "" {
		return false
	}
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

// Load reads and parses the task store at path.
// A missing file yields an empty sequence, not an error.
func Load(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task store: %w", err)
	}
	return Parse(string(data)), nil
}

var (
	sessionLinePattern = regexp.MustCompile(`(?m)^\*\*Session\*\*:\s*(.+?)\s*$`)
	createdLinePattern = regexp.MustCompile(`(?m)^\*\*Created\*\*:\s*(.+?)\s*$`)
)

// createdFormats are the timestamp layouts accepted in the **Created**
// metadata line, most specific first.
var createdFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Metadata reads the session name and creation timestamp from the
// document's metadata header lines. ok is false when the session line is
// absent; a missing or unparseable Created line yields a zero time with
// ok still true.
func Metadata(text string) (session string, created time.Time, ok bool) {
	m := sessionLinePattern.FindStringSubmatch(text)
	if m == nil {
		return "", time.Time{}, false
	}
	session = m[1]

	if c := createdLinePattern.FindStringSubmatch(text); c != nil {
		for _, layout := range createdFormats {
			if t, err := time.Parse(layout, c[1]); err == nil {
				created = t
				break
			}
		}
	}
	return session, created, true
}

// templateMarkers identify placeholder tasks left by the empty template.
// The parser cannot distinguish these from real tasks; only session
// resumption filters them.
var templateMarkers = []string{
	"[task description]",
	"[brief description]",
	"task title here",
	"example task",
	"<title>",
	"{{",
}

// IsTemplateTask reports whether a parsed task is a template placeholder
// rather than real work. Used only by session-resumption logic.
func IsTemplateTask(t Task) bool {
	lower := strings.ToLower(t.Title)
	for _, marker := range templateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RealTasks filters out template placeholders.
func RealTasks(tasks []Task) []Task {
	var real []Task
	for _, t := range tasks {
		if !IsTemplateTask(t) {
			real = append(real, t)
		}
	}
	return real
}

// FirstIncomplete returns the first task in document order with
// Completed == false, or ok == false if every task is complete.
func FirstIncomplete(tasks []Task) (Task, bool) {
	for _, t := range tasks {
		if !t.Completed {
			return t, true
		}
	}
	return Task{}, false
}

// CountCheckboxes counts completed and total task-checkbox lines in the
// document, ignoring unrelated checklist items that do not match the task
// pattern.
func CountCheckboxes(text string) (done, total int) {
	for _, line := range strings.Split(text, "\n") {
		m := taskLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		total++
		if m[1] == "x" || m[1] == "X" {
			done++
		}
	}
	return done, total
}
