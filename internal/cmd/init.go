package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/platform"
	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/internal/wizard"
	"github.com/capydeploy/agent/pkg/cli"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard to generate a config file",
		RunE:  runInit,
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: "+config.DefaultPath()+")")
	cmd.Flags().Bool("systemd", false, "also generate a systemd unit file")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	systemd, _ := cmd.Flags().GetBool("systemd")
	if output == "" {
		output = config.DefaultPath()
	}

	w := wizard.New(cli.DefaultPrompter())
	cfg, id, err := w.Run(output, systemd)
	if err != nil {
		return err
	}

	// Seed the settings store so the daemon boots with the chosen
	// identity instead of the built-in defaults.
	if err := os.MkdirAll(filepath.Dir(cfg.State.DBPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	st, err := store.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Set(store.KeyAgentName, id.AgentName); err != nil {
		return fmt.Errorf("save agent name: %w", err)
	}
	if err := st.Set(store.KeyInstallPath, platform.ExpandHome(id.InstallPath)); err != nil {
		return fmt.Errorf("save install path: %w", err)
	}
	return nil
}
