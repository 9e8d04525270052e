package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	toolsDir   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "toolweave",
		Short:         "toolweave runs control files of tool chains close to their data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (YAML or TOML)")
	cmd.PersistentFlags().StringVar(&flags.toolsDir, "tools", "", "Toolspec directory, overriding repository.dir")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newPartitionCmd(flags))
	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newExecCmd(flags))
	cmd.AddCommand(newToolsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
