package dashboard

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/capydeploy/agent/internal/tui"
	"github.com/capydeploy/agent/pkg/protocol"
)

type gamesModel struct {
	items  []protocol.TrackedShortcut
	cursor int
}

func newGames(games []protocol.TrackedShortcut) gamesModel {
	return gamesModel{items: games}
}

func (g *gamesModel) update(games []protocol.TrackedShortcut) {
	g.items = games
	if g.cursor >= len(g.items) {
		g.cursor = max(0, len(g.items)-1)
	}
}

func (g gamesModel) Update(msg tea.Msg) (gamesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if g.cursor < len(g.items)-1 {
				g.cursor++
			}
		case "k", "up":
			if g.cursor > 0 {
				g.cursor--
			}
		case "G":
			g.cursor = max(0, len(g.items)-1)
		case "g":
			g.cursor = 0
		}
	}
	return g, nil
}

func (g gamesModel) View() string {
	if len(g.items) == 0 {
		return tui.Dimmed.Render("  No games deployed")
	}

	// Table header.
	headerStyle := lipgloss.NewStyle().Foreground(tui.ColorSubtle).Bold(true)
	header := fmt.Sprintf("  %-24s %-12s %s",
		headerStyle.Render("NAME"),
		headerStyle.Render("APP ID"),
		headerStyle.Render("INSTALLED"),
	)

	rows := header + "\n"
	for i, game := range g.items {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == g.cursor {
			cursor = tui.Selected.Render("> ")
			style = style.Bold(true)
		}

		name := game.GameName
		if len(name) > 22 {
			name = name[:22]
		}

		row := fmt.Sprintf("%-24s %-12d %s",
			style.Render(name),
			game.AppID,
			style.Render(formatAge(game.InstalledAt)),
		)
		rows += cursor + row + "\n"
	}

	return rows
}

func (g gamesModel) height() int {
	return min(len(g.items)+2, 12) // header + rows, max 12
}

func formatAge(unixSeconds int64) string {
	if unixSeconds == 0 {
		return "-"
	}
	d := time.Since(time.Unix(unixSeconds, 0))
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return time.Unix(unixSeconds, 0).Format("2006-01-02")
	}
}
