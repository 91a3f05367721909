// Package git provides git operations for taskloop sessions.
package git

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SessionBranchPrefix is the namespace for session branches.
const SessionBranchPrefix = "taskloop/"

// MaxSlugLength bounds the sanitized session-name portion of a branch.
const MaxSlugLength = 40

// branchTimeLayout is the timestamp suffix appended to session branches.
const branchTimeLayout = "20060102-1504"

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeSessionName turns a session name into a branch-safe slug:
// lowercased, runs of non-alphanumerics collapsed to a single hyphen,
// truncated to MaxSlugLength.
func SanitizeSessionName(name string) string {
	slug := strings.ToLower(name)
	slug = nonAlnumPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "session"
	}
	if len(slug) > MaxSlugLength {
		slug = strings.Trim(slug[:MaxSlugLength], "-")
	}
	return slug
}

// SessionBranch returns the branch name for a session started at the
// given time: taskloop/<slug>-<YYYYMMDD-HHMM>.
func SessionBranch(sessionName string, start time.Time) string {
	return fmt.Sprintf("%s%s-%s", SessionBranchPrefix, SanitizeSessionName(sessionName), start.Format(branchTimeLayout))
}

// IsSessionBranch reports whether branch follows the session naming
// convention.
func IsSessionBranch(branch string) bool {
	if !strings.HasPrefix(branch, SessionBranchPrefix) {
		return false
	}
	rest := strings.TrimPrefix(branch, SessionBranchPrefix)
	// Slug plus timestamp suffix.
	if len(rest) < len(branchTimeLayout)+2 {
		return false
	}
	suffix := rest[len(rest)-len(branchTimeLayout):]
	_, err := time.Parse(branchTimeLayout, suffix)
	return err == nil
}
