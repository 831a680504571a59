package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/ipc"
)

func newHubsCmd() *cobra.Command {
	hubsCmd := &cobra.Command{
		Use:   "hubs",
		Short: "Manage paired Hubs",
		RunE:  runHubsList, // default subcommand
	}
	hubsCmd.AddCommand(newHubsListCmd())
	hubsCmd.AddCommand(newHubsRevokeCmd())
	return hubsCmd
}

func newHubsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List Hubs authorized to connect",
		RunE:  runHubsList,
	}
}

func newHubsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <hub-id>",
		Short: "Revoke a Hub's authorization",
		Args:  cobra.ExactArgs(1),
		RunE:  runHubsRevoke,
	}
}

func runHubsList(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result ipc.HubsResult
	if err := client.CallResult("hubs", nil, &result); err != nil {
		return err
	}

	if len(result.Hubs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No paired Hubs. Pair one from the Hub UI while the agent is enabled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HUB ID\tNAME\tPAIRED")
	for _, h := range result.Hubs {
		paired := time.Unix(h.PairedAt, 0).Format("2006-01-02 15:04")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", h.HubID, h.Name, paired)
	}
	return w.Flush()
}

func runHubsRevoke(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result ipc.RevokeResult
	if err := client.CallResult("revoke_hub", ipc.HubParams{HubID: args[0]}, &result); err != nil {
		return err
	}

	if !result.Revoked {
		return fmt.Errorf("hub %q is not paired", args[0])
	}

	_, _ = fmt.Fprintf(os.Stdout, "Hub %q revoked. It must pair again to reconnect.\n", args[0])
	return nil
}
