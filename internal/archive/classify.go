package archive

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// TestClass is the destination class of a working test script.
type TestClass int

const (
	// ClassSessionSpecific scripts are archived with the session.
	ClassSessionSpecific TestClass = iota
	// ClassReusable scripts persist in the reusable tests directory.
	ClassReusable
)

// scriptGlobs are the filename patterns scanned in the working tests
// directory, at any depth.
var scriptGlobs = []string{
	"**/*.js",
	"**/*.mjs",
	"**/*.ts",
	"**/*.sh",
	"**/*.py",
}

var (
	// sessionSpecificName marks filenames that are bound to one session:
	// a task-number token, a date token, or fix/bug/session wording.
	sessionSpecificName = regexp.MustCompile(`(?i)(task[-_]?\d+|\d{4}-\d{2}-\d{2}|\d{8}|session|fix|bug)`)

	// reusableName is the generic naming convention: verb-prefixed or
	// flow-suffixed.
	reusableName = regexp.MustCompile(`(?i)^(verify|check|validate)[-_].+|.+[-_]flow\.[a-z]+$`)

	// sessionContentMarkers are hard-coded identifiers inside a script
	// that tie it to one session even when the filename looks generic.
	sessionContentMarkers = regexp.MustCompile(`(?i)(task[-_ ]?#?\d+|session[-_ ]|\bTODO: remove\b)`)
)

// ClassifyTest classifies a script by filename and content using the
// two-stage heuristic. Anything that does not positively match the
// reusable convention defaults to session-specific: archiving a generic
// script is recoverable, polluting the reusable set is not.
func ClassifyTest(filename string, content []byte) TestClass {
	base := filepath.Base(filename)

	if sessionSpecificName.MatchString(base) {
		return ClassSessionSpecific
	}
	if reusableName.MatchString(base) && !sessionContentMarkers.Match(content) {
		return ClassReusable
	}
	return ClassSessionSpecific
}

// findTestScripts lists script files under testsDir recursively,
// excluding the reusable subdirectory.
func findTestScripts(testsDir, reusableDir string) ([]string, error) {
	if _, err := os.Stat(testsDir); os.IsNotExist(err) {
		return nil, nil
	}

	fsys := os.DirFS(testsDir)
	seen := make(map[string]bool)
	var files []string
	for _, glob := range scriptGlobs {
		matches, err := doublestar.Glob(fsys, glob)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			full := filepath.Join(testsDir, m)
			if strings.HasPrefix(full, reusableDir+string(filepath.Separator)) || full == reusableDir {
				continue
			}
			if !seen[full] {
				seen[full] = true
				files = append(files, full)
			}
		}
	}
	return files, nil
}
