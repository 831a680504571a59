package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/daemon"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [config-file]",
		Short: "Start the agent as a background process",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, config.DefaultPath())

	// Surface config mistakes here rather than in the log file.
	if _, err := config.LoadOrDefault(configPath); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if pid, _ := daemon.ReadPID(); pid > 0 && daemon.IsRunning(pid) {
		return fmt.Errorf("agent is already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	logFile, err := daemon.OpenLogFile()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, "run", configPath)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = daemon.DetachSysProcAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	pid := child.Process.Pid
	// Reap the child if it dies, otherwise the liveness probe below
	// would see the zombie as running.
	go func() { _ = child.Wait() }()

	if err := daemon.WritePID(pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	// Give the daemon a moment to trip over bad state (port in use,
	// unwritable DB path) so the failure lands here, not silently in
	// the log.
	time.Sleep(300 * time.Millisecond)
	if !daemon.IsRunning(pid) {
		_ = daemon.RemovePID()
		return fmt.Errorf("agent exited immediately, check %s", daemon.LogPath())
	}

	_, _ = fmt.Fprintf(os.Stdout, "Agent started (PID %d)\n", pid)
	_, _ = fmt.Fprintf(os.Stdout, "  Config: %s\n", configPath)
	_, _ = fmt.Fprintf(os.Stdout, "  Logs:   %s\n", daemon.LogPath())
	return nil
}
