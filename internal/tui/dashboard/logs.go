package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/tui"
	"github.com/capydeploy/agent/pkg/protocol"
)

const maxLogLines = 1000

type logsModel struct {
	viewport   viewport.Model
	lines      []string
	autoScroll bool
	width      int
	height     int
}

func newLogs() logsModel {
	vp := viewport.New(80, 10)
	return logsModel{
		viewport:   vp,
		autoScroll: true,
	}
}

func (l *logsModel) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.viewport.Width = width
	l.viewport.Height = height
}

func (l *logsModel) addEvent(msg EventMsg) {
	line := l.formatEvent(msg)
	l.lines = append(l.lines, line)

	// Trim old lines.
	if len(l.lines) > maxLogLines {
		l.lines = l.lines[len(l.lines)-maxLogLines:]
	}

	l.viewport.SetContent(strings.Join(l.lines, "\n"))
	if l.autoScroll {
		l.viewport.GotoBottom()
	}
}

func (l logsModel) formatEvent(msg EventMsg) string {
	ts := time.Now().Format("15:04:05")

	switch msg.Type {
	case eventbus.LogEntry:
		var entry map[string]any
		if err := json.Unmarshal(msg.Data, &entry); err == nil {
			level, _ := entry["level"].(string)
			message, _ := entry["msg"].(string)

			var attrs []string
			for k, v := range entry {
				if k == "level" || k == "msg" || k == "time" {
					continue
				}
				attrs = append(attrs, fmt.Sprintf("%s=%v", k, v))
			}

			levelStyle := tui.LogLevelStyle(level)
			formatted := fmt.Sprintf("  %s %s  %s", ts, levelStyle.Render(fmt.Sprintf("%-5s", level)), message)
			if len(attrs) > 0 {
				formatted += "  " + tui.Dimmed.Render(strings.Join(attrs, " "))
			}
			return formatted
		}

	case eventbus.UploadProgress:
		var prog protocol.UploadProgressEvent
		if err := json.Unmarshal(msg.Data, &prog); err == nil {
			return fmt.Sprintf("  %s %s  %s %.0f%% (%s)",
				ts, tui.Subtitle.Render("xfer "), prog.CurrentFile, prog.Percentage,
				formatBytes(prog.TransferredBytes))
		}

	case eventbus.OperationEvent:
		var op protocol.OperationEvent
		if err := json.Unmarshal(msg.Data, &op); err == nil {
			label := fmt.Sprintf("%s %s", op.Type, op.Status)
			line := fmt.Sprintf("  %s %s  %s", ts, tui.Subtitle.Render(fmt.Sprintf("%-11s", label)), op.GameName)
			if op.Message != "" {
				line += "  " + tui.Dimmed.Render(op.Message)
			}
			return line
		}
	}

	// Fallback: raw event.
	return fmt.Sprintf("  %s %s  %s", ts, tui.Dimmed.Render(msg.Type), string(msg.Data))
}

func (l logsModel) Update(msg tea.Msg) (logsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "G":
			l.autoScroll = true
			l.viewport.GotoBottom()
			return l, nil
		case "g":
			l.autoScroll = false
			l.viewport.GotoTop()
			return l, nil
		case "j", "down":
			l.autoScroll = false
		case "k", "up":
			l.autoScroll = false
		}
	}

	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return l, cmd
}

func (l logsModel) View() string {
	return l.viewport.View()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
