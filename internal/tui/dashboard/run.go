package dashboard

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/ipc"
)

// Attach connects to a running daemon and displays the dashboard TUI.
// Returns true when the user quits the dashboard (daemon keeps running).
//
// Two connections: a subscribed connection streams events and serves no
// further requests, so status and games polling happens on its own one.
func Attach(socketPath string) (ok bool, err error) {
	control, err := ipc.Dial(socketPath)
	if err != nil {
		return false, fmt.Errorf("connect to agent: %w", err)
	}
	defer func() { _ = control.Close() }()

	events, err := ipc.Dial(socketPath)
	if err != nil {
		return false, fmt.Errorf("connect to agent: %w", err)
	}
	defer func() { _ = events.Close() }()

	// Initial snapshot.
	var status ipc.StatusResult
	if err := control.CallResult("status", nil, &status); err != nil {
		return false, fmt.Errorf("query status: %w", err)
	}
	var games ipc.GamesResult
	if err := control.CallResult("games", nil, &games); err != nil {
		return false, fmt.Errorf("query games: %w", err)
	}

	// Stream all event types.
	if err := events.Subscribe(); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	m := NewModel(status, games.Games)

	p := tea.NewProgram(m, tea.WithAltScreen())

	// refreshState fetches current status and games and sends updates to the TUI.
	refreshState := func() {
		var s ipc.StatusResult
		if control.CallResult("status", nil, &s) == nil {
			p.Send(StatusUpdateMsg{Status: s})
		}
		var g ipc.GamesResult
		if control.CallResult("games", nil, &g) == nil {
			p.Send(GamesUpdateMsg{Games: g.Games})
		}
	}

	// Forward daemon events to the TUI, refreshing the panels right away
	// on state-changing events.
	go func() {
		for evt := range events.Events() {
			p.Send(EventMsg{Type: evt.Type, Data: evt.Data})
			switch evt.Type {
			case eventbus.HubConnected, eventbus.HubDisconnected,
				eventbus.PairingSuccess, eventbus.CreateShortcut, eventbus.RemoveShortcut:
				refreshState()
			}
		}
	}()

	// Periodically refresh status and games.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshState()
			case <-done:
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return false, fmt.Errorf("TUI error: %w", err)
	}

	return true, nil
}
