package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/daemon"
	"github.com/capydeploy/agent/internal/ipc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Try the control socket first for live status.
	if status, err := queryStatus(cmd); err == nil {
		state := "disabled (hidden from Hubs)"
		if status.Enabled {
			state = "enabled"
		}
		hub := "none"
		if status.Connected {
			hub = fmt.Sprintf("%s (connected)", status.HubName)
		}

		_, _ = fmt.Fprintf(os.Stdout, "Status:   running, %s\n", state)
		_, _ = fmt.Fprintf(os.Stdout, "Agent:    %s\n", status.AgentName)
		_, _ = fmt.Fprintf(os.Stdout, "Platform: %s\n", status.Platform)
		_, _ = fmt.Fprintf(os.Stdout, "Version:  %s\n", status.Version)
		_, _ = fmt.Fprintf(os.Stdout, "Address:  %s:%d\n", status.IP, status.Port)
		_, _ = fmt.Fprintf(os.Stdout, "Install:  %s\n", status.InstallPath)
		_, _ = fmt.Fprintf(os.Stdout, "Hub:      %s\n", hub)
		_, _ = fmt.Fprintf(os.Stdout, "Uptime:   %s\n", status.Uptime)
		return nil
	}

	// Fall back to PID + config.
	pid, _ := daemon.ReadPID()

	if pid == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "Status:  stopped (no PID file)")
		return nil
	}

	if !daemon.IsRunning(pid) {
		_, _ = fmt.Fprintf(os.Stdout, "Status:  stopped (stale PID %d)\n", pid)
		return nil
	}

	_, _ = fmt.Fprintf(os.Stdout, "Status:  running\n")
	_, _ = fmt.Fprintf(os.Stdout, "PID:     %d\n", pid)
	_, _ = fmt.Fprintf(os.Stdout, "Logs:    %s\n", daemon.LogPath())

	// Try to show config info.
	configPath := resolveConfigPath(cmd, nil, config.DefaultPath())
	cfg, err := config.LoadOrDefault(configPath)
	if err == nil {
		_, _ = fmt.Fprintf(os.Stdout, "Config:  %s\n", configPath)
		_, _ = fmt.Fprintf(os.Stdout, "Listen:  %s\n", cfg.Server.Addr)
		_, _ = fmt.Fprintf(os.Stdout, "Socket:  %s\n", cfg.State.SocketPath)
	}

	return nil
}

func queryStatus(cmd *cobra.Command) (*ipc.StatusResult, error) {
	client, err := dialControl(cmd)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	var status ipc.StatusResult
	if err := client.CallResult("status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
