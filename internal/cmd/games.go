package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/ipc"
	"github.com/capydeploy/agent/pkg/cli"
)

func newGamesCmd() *cobra.Command {
	gamesCmd := &cobra.Command{
		Use:   "games",
		Short: "Manage deployed games",
		RunE:  runGamesList, // default subcommand
	}
	gamesCmd.AddCommand(newGamesListCmd())
	gamesCmd.AddCommand(newGamesUninstallCmd())
	return gamesCmd
}

func newGamesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List games deployed to this agent",
		RunE:  runGamesList,
	}
}

func newGamesUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Remove a deployed game and its Steam shortcut",
		Args:  cobra.ExactArgs(1),
		RunE:  runGamesUninstall,
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func runGamesList(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result ipc.GamesResult
	if err := client.CallResult("games", nil, &result); err != nil {
		return err
	}

	if len(result.Games) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No games deployed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tAPP ID\tINSTALLED")
	for _, g := range result.Games {
		installed := time.Unix(g.InstalledAt, 0).Format("2006-01-02 15:04")
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", g.GameName, g.AppID, installed)
	}
	return w.Flush()
}

func runGamesUninstall(cmd *cobra.Command, args []string) error {
	skipPrompt, _ := cmd.Flags().GetBool("yes")
	if !skipPrompt {
		q := fmt.Sprintf("Remove %q, its files, and its Steam shortcut?", args[0])
		if !cli.DefaultPrompter().Confirm(q, false) {
			return nil
		}
	}

	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result ipc.UninstallResult
	if err := client.CallResult("uninstall_game", ipc.NameParams{Name: args[0]}, &result); err != nil {
		return err
	}

	if !result.Removed {
		return fmt.Errorf("game %q is not tracked by this agent", args[0])
	}

	_, _ = fmt.Fprintf(os.Stdout, "Removed %q and its Steam shortcut.\n", result.GameName)
	_, _ = fmt.Fprintln(os.Stdout, "Restart Steam to make the library reflect the change.")
	return nil
}
