package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskloop/internal/config"
	"taskloop/internal/postmortem"
)

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose [logfile]",
		Short: "Reconstruct task timelines from an execution log",
		Long: `Diagnose parses an execution log (the live one by default, or an
archived copy given as an argument) and reports per task whether it
completed, hung, or never started, with attempt counts and suspected
causes for hangs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.Paths.ExecutionLog
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read log %s: %w", path, err)
			}

			report := postmortem.Analyze(string(data))
			fmt.Println(paint(styleHeader, fmt.Sprintf("Diagnosis of %s (%d log lines)", path, report.ParsedLines)))
			fmt.Print(report.Render())
			return nil
		},
	}
	return cmd
}
