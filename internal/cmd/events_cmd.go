package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Stream daemon events",
		RunE:  runEventsTail, // default subcommand
	}
	eventsCmd.AddCommand(newEventsTailCmd())
	return eventsCmd
}

func newEventsTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail [event-type...]",
		Short: "Print daemon events as JSON lines (all types unless filtered)",
		RunE:  runEventsTail,
	}
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	client, err := dialControl(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Subscribe(args...); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case evt, ok := <-client.Events():
			if !ok {
				return fmt.Errorf("connection to agent lost")
			}
			line, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintln(os.Stdout, string(line))
		case <-ctx.Done():
			return nil
		}
	}
}
