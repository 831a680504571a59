package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capydeploy/agent/internal/daemon"
)

// followPoll is how often follow mode re-checks the file after EOF.
const followPoll = 200 * time.Millisecond

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show agent log output",
		RunE:  runLogs,
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines to show")
	cmd.Flags().BoolP("follow", "f", false, "follow log output")
	return cmd
}

func runLogs(cmd *cobra.Command, args []string) error {
	numLines, _ := cmd.Flags().GetInt("lines")
	follow, _ := cmd.Flags().GetBool("follow")

	logPath := daemon.LogPath()
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no log file found at %s", logPath)
		}
		return err
	}
	defer func() { _ = f.Close() }()

	lines, err := tailLines(f, numLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(os.Stdout, line)
	}

	if !follow {
		return nil
	}
	return followLog(cmd.Context(), f)
}

// followLog prints lines appended to f until ctx is cancelled. The
// initial tail left the offset at EOF, so only new output shows up.
func followLog(ctx context.Context, f *os.File) error {
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			_, _ = fmt.Fprint(os.Stdout, line)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(followPoll):
		}
	}
}

// tailLines scans f to the end, keeping a window of the last n lines.
func tailLines(f *os.File, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	window := make([]string, n)
	total := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		window[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if total < n {
		return window[:total], nil
	}
	// Unroll the ring so the oldest retained line comes first.
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, window[(total+i)%n])
	}
	return lines, nil
}
