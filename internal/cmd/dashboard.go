package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/tui/dashboard"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"attach"},
		Short:   "Open the TUI dashboard for a running agent",
		RunE:    runDashboard,
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, nil, config.DefaultPath())
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	if _, err := dashboard.Attach(cfg.State.SocketPath); err != nil {
		return fmt.Errorf("attach failed: %w", err)
	}

	fmt.Println("Agent continues in the background.")
	fmt.Println("Re-attach: capydeploy-agent dashboard  |  Stop: capydeploy-agent stop")
	return nil
}
