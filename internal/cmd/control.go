package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/ipc"
)

// dialControl connects to the daemon's control socket, resolving the
// socket path from the config. Callers own the returned client.
func dialControl(cmd *cobra.Command) (*ipc.Client, error) {
	configPath := resolveConfigPath(cmd, nil, config.DefaultPath())
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	client, err := ipc.Dial(cfg.State.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("agent is not running (start it with `capydeploy-agent start`)")
	}
	return client, nil
}
