package dashboard

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/capydeploy/agent/internal/ipc"
	"github.com/capydeploy/agent/internal/tui"
)

type headerModel struct {
	status ipc.StatusResult
}

func newHeader(status ipc.StatusResult) headerModel {
	return headerModel{status: status}
}

func (h *headerModel) update(status ipc.StatusResult) {
	h.status = status
}

func (h headerModel) View(width int) string {
	left := tui.Title.Render("CapyDeploy Agent")

	dot := tui.StatusDot(h.status.Enabled, h.status.Connected)
	statusLabel := tui.StatusText(h.status.Enabled, h.status.Connected)
	right := fmt.Sprintf("%s %s", dot, statusLabel)
	if h.status.Connected && h.status.HubName != "" {
		right = fmt.Sprintf("%s  %s %s", h.status.HubName, dot, statusLabel)
	}

	info := fmt.Sprintf("  Agent: %s   Address: %s:%d   Install: %s   Uptime: %s",
		h.status.AgentName, h.status.IP, h.status.Port, h.status.InstallPath, h.status.Uptime)

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(width - 2).
		Padding(0, 1)

	pad := width - lipgloss.Width(left) - lipgloss.Width(right) - 6
	if pad < 1 {
		pad = 1
	}
	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(pad).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(info))
}
