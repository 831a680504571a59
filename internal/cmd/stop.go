package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/daemon"
)

// stopTimeout is how long the daemon gets to exit on SIGTERM before
// it is killed.
const stopTimeout = 5 * time.Second

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background agent process",
		RunE:  runStop,
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := daemon.ReadPID()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	switch {
	case pid == 0:
		_, _ = fmt.Fprintln(os.Stdout, "Agent is not running (no PID file)")
		return nil
	case !daemon.IsRunning(pid):
		_ = daemon.RemovePID()
		_, _ = fmt.Fprintf(os.Stdout, "Agent is not running (stale PID %d removed)\n", pid)
		return nil
	}

	_, _ = fmt.Fprintf(os.Stdout, "Stopping agent (PID %d)...\n", pid)
	if err := daemon.StopProcess(pid, stopTimeout); err != nil {
		return err
	}
	_ = daemon.RemovePID()

	// Only a killed daemon leaves its control socket behind; a clean
	// SIGTERM exit unlinks it on the way out.
	if cfg, err := config.LoadOrDefault(resolveConfigPath(cmd, nil, config.DefaultPath())); err == nil {
		_ = os.Remove(cfg.State.SocketPath)
	}

	_, _ = fmt.Fprintln(os.Stdout, "Agent stopped")
	return nil
}
