package loop

import (
	"fmt"
	"os"
	"strings"

	"taskloop/internal/taskstore"
)

// memoryTailBytes bounds how much of the memory log is carried into each
// prompt. The tail is kept because recent progress notes matter most.
const memoryTailBytes = 8192

// executionInstructions is the fixed trailer appended to every task
// prompt. The checkbox flip is the only completion signal the loop
// trusts, so the instructions insist on it.
const executionInstructions = `## Execution Instructions

1. Complete ONLY the task above. Do not start other tasks.
2. Follow the verification steps in the task details before finishing.
3. When the task is fully done, edit the task store document and change
   this task's checkbox from "- [ ]" to "- [x]". This edit is the ONLY
   way the orchestrator detects completion.
4. Append a short progress note to the memory log describing what you did.
`

// BuildPrompt assembles the agent prompt: system rules, the tail of the
// memory log, the task itself, and the fixed execution instructions.
func BuildPrompt(rulesPath, memoryPath string, task taskstore.Task) (string, error) {
	rules, err := os.ReadFile(rulesPath)
	if err != nil {
		return "", fmt.Errorf("read rules: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# System Rules\n\n")
	sb.Write(rules)
	sb.WriteString("\n\n")

	if memory := readTail(memoryPath, memoryTailBytes); memory != "" {
		sb.WriteString("# Session Memory (recent)\n\n")
		sb.WriteString(memory)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("# Current Task\n\nTask %d: %s\n", task.ID, task.Title))
	if len(task.Details) > 0 {
		sb.WriteString("\n")
		sb.WriteString(task.DetailText())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(executionInstructions)

	return sb.String(), nil
}

// readTail returns up to limit bytes from the end of the file, starting
// at a line boundary. Missing file yields empty.
func readTail(path string, limit int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(data)
	if len(text) <= limit {
		return strings.TrimSpace(text)
	}
	tail := text[len(text)-limit:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
