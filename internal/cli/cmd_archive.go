package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskloop/internal/archive"
	"taskloop/internal/config"
)

func newArchiveCmd() *cobra.Command {
	var (
		reset bool
		list  bool
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Snapshot the session's working files into a dated archive",
		Long: `Archive copies tasks.md, memory.md, costs.json, execution.log and
feedback.md into archives/YYYY/MM/DD-HHMM-<slug>/, classifies test
scripts as reusable or session-specific, and writes a summary.

With --reset the working files are also rewritten to fresh templates.
With --list existing archives are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			m := archive.NewManager(cfg, newLogger())

			if list {
				archives, err := m.List()
				if err != nil {
					return err
				}
				if len(archives) == 0 {
					fmt.Println("No archives yet.")
					return nil
				}
				for _, a := range archives {
					fmt.Println(a)
				}
				return nil
			}

			res, err := m.Archive()
			if err != nil {
				return err
			}
			fmt.Println(paint(styleSuccess, "Archived to"), res.ArchivePath)
			fmt.Printf("Tasks: %d/%d complete\n", res.Completed, res.Total)
			if len(res.Reusable) > 0 {
				fmt.Printf("Promoted reusable tests: %d\n", len(res.Reusable))
			}

			if reset {
				if err := m.Reset(res); err != nil {
					return err
				}
				fmt.Println(paint(styleSuccess, "Working files reset."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "reset working files to templates after archiving")
	cmd.Flags().BoolVar(&list, "list", false, "list existing archives")
	return cmd
}
