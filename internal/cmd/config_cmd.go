package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/ipc"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View process config or read/write agent settings",
		RunE:  runConfigShow, // default subcommand
	}
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigGetCmd())
	configCmd.AddCommand(newConfigSetCmd())
	return configCmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the process configuration file",
		RunE:  runConfigShow,
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read a setting from the running agent",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting on the running agent",
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, nil, config.DefaultPath())
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Config: %s\n\n", configPath)
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result ipc.ValueResult
	if err := client.CallResult("get_setting", ipc.GetSettingParams{Key: args[0]}, &result); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(os.Stdout, string(result.Value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	key, value := args[0], encodeValue(args[1])
	if err := client.CallResult("set_setting", ipc.SetSettingParams{Key: key, Value: value}, nil); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "%s = %s\n", key, string(value))
	return nil
}

// encodeValue turns a CLI argument into a JSON value. Arguments that
// already parse as JSON (true, 42, "quoted", {...}) pass through raw;
// anything else is treated as a string.
func encodeValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	quoted, _ := json.Marshal(arg)
	return quoted
}
