package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root worker command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stablehorder",
		Short:         "Horde worker bridging a reception and a generation identity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "config.yaml", "path to config file (.yaml or .toml)")

	cmd.AddCommand(
		newRunCmd(),
		newStatsCmd(),
		newCheckConfigCmd(),
		newTranslateCmd(),
	)

	return cmd
}
