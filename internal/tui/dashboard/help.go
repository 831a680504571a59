package dashboard

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/capydeploy/agent/internal/tui"
)

// keyMap declares every dashboard binding once; Update matches on it
// and the help bar renders from it.
type keyMap struct {
	Quit   key.Binding
	Detach key.Binding
	Switch key.Binding
	Down   key.Binding
	Up     key.Binding
	Bottom key.Binding
	Top    key.Binding
	Help   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Detach: key.NewBinding(key.WithKeys("d", "ctrl+d"), key.WithHelp("d", "detach")),
		Switch: key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "switch")),
		Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/k", "navigate")),
		Up:     key.NewBinding(key.WithKeys("k", "up")),
		Bottom: key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "bottom")),
		Top:    key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "top")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	}
}

type helpModel struct {
	keys    keyMap
	visible bool
}

func newHelp() helpModel {
	return helpModel{keys: defaultKeyMap()}
}

func (h *helpModel) toggle() {
	h.visible = !h.visible
}

// bar is the one-line hint pinned under the panels.
func (h helpModel) bar() string {
	shown := []key.Binding{h.keys.Quit, h.keys.Detach, h.keys.Switch, h.keys.Down, h.keys.Bottom, h.keys.Help}
	parts := make([]string, 0, len(shown))
	for _, b := range shown {
		hint := b.Help()
		parts = append(parts, hint.Key+" "+hint.Desc)
	}
	return tui.Help.Render("  " + strings.Join(parts, "  "))
}

// View is the full overlay shown while "?" is toggled on.
func (h helpModel) View() string {
	keyStyle := lipgloss.NewStyle().
		Foreground(tui.ColorAccent).
		Bold(true).
		Width(14)
	descStyle := lipgloss.NewStyle().Foreground(tui.ColorText)

	rows := []struct {
		keys string
		desc string
	}{
		{"q / Ctrl+C", "Quit the dashboard"},
		{"d / Ctrl+D", "Detach and leave the agent running"},
		{"Tab", "Switch between the Games and Logs panels"},
		{"j / Down", "Move down or scroll down"},
		{"k / Up", "Move up or scroll up"},
		{"G", "Jump to the newest log line"},
		{"g", "Jump to the top"},
		{"?", "Toggle this help"},
	}

	var b strings.Builder
	b.WriteString(tui.Title.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString("  ")
		b.WriteString(keyStyle.Render(r.keys))
		b.WriteString(descStyle.Render(r.desc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(tui.Help.Render("  Press ? to close"))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}
