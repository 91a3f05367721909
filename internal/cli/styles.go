package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Terminal styles, disabled when stdout is not a TTY.
var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Underline(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
)

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// paint applies a style only when color output is appropriate.
func paint(s lipgloss.Style, text string) string {
	if !colorEnabled() {
		return text
	}
	return s.Render(text)
}
