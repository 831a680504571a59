// Package cmd wires up the capydeploy-agent command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for capydeploy-agent.
// When invoked without a subcommand in a TTY, it uses smart default logic:
// daemon running → dashboard, no config → init wizard, otherwise → run.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "capydeploy-agent",
		Short: "CapyDeploy agent — LAN game deployment target",
		Long: "The CapyDeploy agent advertises itself on the local network, accepts\n" +
			"game deployments from paired Hubs, and registers installed games as\n" +
			"Steam shortcuts.",
		// Bare invocation uses smart default logic.
		RunE:          runDefault,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newEnableCmd())
	root.AddCommand(newDisableCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newHubsCmd())
	root.AddCommand(newGamesCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDashboardCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	return root
}
