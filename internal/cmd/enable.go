package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/ipc"
)

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Start accepting Hub connections (listener + mDNS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, true)
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Stop accepting Hub connections and go invisible",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, false)
		},
	}
}

func setEnabled(cmd *cobra.Command, enabled bool) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.CallResult("set_enabled", ipc.SetEnabledParams{Enabled: enabled}, nil); err != nil {
		return err
	}

	if enabled {
		_, _ = fmt.Fprintln(os.Stdout, "Agent enabled — Hubs can now discover and connect to it.")
	} else {
		_, _ = fmt.Fprintln(os.Stdout, "Agent disabled — listener stopped, mDNS withdrawn.")
	}
	return nil
}
