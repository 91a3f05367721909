package archive

import (
	"fmt"
	"time"
)

// taskStoreTemplate is the fresh task store written on reset. The task
// line is a placeholder the parser sees as a real task; session
// resumption filters it via the template heuristic.
func taskStoreTemplate(now time.Time) string {
	return fmt.Sprintf(`**Session**: new-session
**Created**: %s

# Tasks

- [ ] **Task 1: [Task description]**
  - **Objective:** What this task accomplishes
  - **Files:** Files to create or modify
  - **Verification:** How to confirm the task is done
`, now.Format("2006-01-02 15:04"))
}

// feedbackTemplate is the fresh feedback-input file.
const feedbackTemplate = `# Feedback

Add feedback on the previous session here. It is consumed by the
task-generation flow, not by the execution loop.
`

// memoryTemplate is the fresh memory log, seeded with a carry-over
// summary so the next session's agent has continuity without reading the
// archive.
func memoryTemplate(session string, completed, total int, archivePath string) string {
	return fmt.Sprintf(`# Session Memory

## Carry-over from previous session

- Session: %s
- Tasks completed: %d/%d
- Archive: %s
`, session, completed, total, archivePath)
}

// ledgerTemplate is the fresh, empty cost ledger.
const ledgerTemplate = `{
  "session": {
    "startTime": "",
    "totalCost": 0
  },
  "tasks": []
}
`
