package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/daemon"
)

// runDefault decides what a bare `capydeploy-agent` invocation means:
// attach to a running daemon, walk through first-time setup, or run in
// the foreground.
func runDefault(cmd *cobra.Command, args []string) error {
	// Scripts and service managers get the plain foreground run.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runRun(cmd, args)
	}

	if pid, _ := daemon.ReadPID(); pid != 0 && daemon.IsRunning(pid) {
		return runDashboard(cmd, args)
	}

	// First run: no config yet, so set one up.
	configPath := resolveConfigPath(cmd, args, config.DefaultPath())
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		initCmd := newInitCmd()
		initCmd.SetContext(cmd.Context())
		return initCmd.RunE(initCmd, nil)
	}

	return runRun(cmd, args)
}
