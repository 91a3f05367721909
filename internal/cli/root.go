// Package cli implements the taskloop command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	looperr "taskloop/internal/errors"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskloop",
	Short: "Orchestrate an external coding agent through a markdown task list",
	Long: `taskloop drives an external coding agent through a repeated
plan -> execute -> verify -> archive cycle against a markdown task store.

The agent does all code generation and file editing; taskloop decides
which task runs next, which model tier to request, how long to wait,
how to detect completion, and how to rotate session state.

Quick start:
  taskloop run          Execute every incomplete task in tasks.md
  taskloop status       Show session progress and cost
  taskloop archive      Snapshot and reset the session
  taskloop diagnose     Reconstruct task timelines from execution.log`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if le := looperr.AsLoopError(err); le != nil {
			fmt.Fprintln(os.Stderr, paint(styleError, le.UserMessage()))
		} else {
			fmt.Fprintln(os.Stderr, paint(styleError, "Error: "+err.Error()))
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .taskloop.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newDiagnoseCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initViper wires the global config file flag into viper before any
// command loads configuration.
func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".taskloop")
	}

	viper.SetEnvPrefix("TASKLOOP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
