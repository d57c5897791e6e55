package cmd

import (
	"github.com/spf13/cobra"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/pkg/profiling"
)

// NewRootCmd assembles the live command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("live", "Live resource subscriptions for the Projectify API")
	cli.SetVersionTemplate(root)
	profiling.NewCobraProfiler().Attach(root)

	root.AddCommand(
		NewGetCmd(),
		NewWatchCmd(),
		NewServeCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		NewLogsCmd(),
		cli.NewVersionCommand("live"),
	)
	return root
}
