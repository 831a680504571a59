package dashboard

import (
	"encoding/json"
	"strings"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/tui"
)

// pairingModel shows the 6-digit pairing code while a Hub is waiting
// for the user to confirm. It disappears once pairing succeeds or the
// Hub connects.
type pairingModel struct {
	code string
}

func newPairing() pairingModel {
	return pairingModel{}
}

func (p *pairingModel) handleEvent(msg EventMsg) {
	switch msg.Type {
	case eventbus.PairingCode:
		var payload struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			p.code = payload.Code
		}
	case eventbus.PairingSuccess, eventbus.HubConnected:
		p.code = ""
	}
}

func (p pairingModel) View(width int) string {
	if p.code == "" {
		return ""
	}

	// Space the digits out so the code is readable across the room.
	spaced := strings.Join(strings.Split(p.code, ""), " ")

	body := tui.Subtitle.Render("Pairing request") + "\n\n" +
		tui.Title.Render(spaced) + "\n" +
		tui.Description.Render("Enter this code on the Hub to authorize it")

	return tui.CodeBox.Width(width - 2).Render(body)
}
