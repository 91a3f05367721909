package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskloop/internal/config"
	"taskloop/internal/loop"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session progress, phase and cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// No in-process loop here, so the reporter reads the persisted
			// state file and working files.
			st := loop.NewStatusReporter(cfg, nil).Report()
			fmt.Print(st.Render())
			return nil
		},
	}
}
