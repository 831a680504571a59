// Package dashboard is the TUI for a running agent daemon: identity
// and connection state, the pairing code when a Hub wants in, deployed
// games, and a live log tail.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/ipc"
	"github.com/capydeploy/agent/internal/tui"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelGames Panel = iota
	PanelLogs
)

// Model is the root dashboard TUI model.
type Model struct {
	header  headerModel
	pairing pairingModel
	games   gamesModel
	logs    logsModel
	help    helpModel

	activePanel Panel
	width       int
	height      int
	detached    bool
	quitting    bool
}

// NewModel creates a dashboard model from an initial status snapshot.
func NewModel(status ipc.StatusResult, games []protocol.TrackedShortcut) Model {
	return Model{
		header:  newHeader(status),
		pairing: newPairing(),
		games:   newGames(games),
		logs:    newLogs(),
		help:    newHelp(),
	}
}

// EventMsg wraps an event streamed from the daemon.
type EventMsg struct {
	Type string
	Data []byte
}

// StatusUpdateMsg carries fresh status data.
type StatusUpdateMsg struct {
	Status ipc.StatusResult
}

// GamesUpdateMsg carries a fresh deployed-games list.
type GamesUpdateMsg struct {
	Games []protocol.TrackedShortcut
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.SetSize(msg.Width-4, m.logsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.help.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.help.keys.Detach):
			m.detached = true
			return m, tea.Quit
		case key.Matches(msg, m.help.keys.Switch):
			if m.activePanel == PanelGames {
				m.activePanel = PanelLogs
			} else {
				m.activePanel = PanelGames
			}
			return m, nil
		case key.Matches(msg, m.help.keys.Help):
			m.help.toggle()
			return m, nil
		}

	case StatusUpdateMsg:
		m.header.update(msg.Status)
		return m, nil

	case GamesUpdateMsg:
		m.games.update(msg.Games)
		return m, nil

	case EventMsg:
		switch msg.Type {
		case eventbus.PairingCode, eventbus.PairingSuccess, eventbus.HubConnected:
			m.pairing.handleEvent(msg)
		}
		m.logs.addEvent(msg)
		return m, nil
	}

	// Delegate to active panel.
	var cmd tea.Cmd
	switch m.activePanel {
	case PanelGames:
		m.games, cmd = m.games.Update(msg)
	case PanelLogs:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	headerView := m.header.View(m.width)

	gamesStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	logsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	if m.activePanel == PanelGames {
		gamesStyle = gamesStyle.BorderForeground(tui.ColorPrimary)
	} else {
		logsStyle = logsStyle.BorderForeground(tui.ColorPrimary)
	}

	sections := []string{headerView}

	if pairingView := m.pairing.View(m.width); pairingView != "" {
		sections = append(sections, pairingView)
	}

	sections = append(sections,
		gamesStyle.Render(tui.Subtitle.Render(" Games")+"\n"+m.games.View()),
		logsStyle.Render(tui.Subtitle.Render(" Logs")+"\n"+m.logs.View()),
		m.help.bar(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Detached returns true if the user pressed detach.
func (m Model) Detached() bool { return m.detached }

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) logsHeight() int {
	// Reserve space for header, games, help bar, borders.
	used := 6 + m.games.height() + 4
	h := m.height - used
	if h < 5 {
		h = 5
	}
	return h
}
