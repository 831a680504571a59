// Package wizard provides the interactive first-run setup for the agent.
package wizard

import (
	"fmt"
	"os"
	"strings"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/pkg/cli"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Identity holds the answers that belong in the settings store rather
// than the config file. The init command seeds the store with them so
// the daemon picks them up on first start.
type Identity struct {
	AgentName   string
	InstallPath string
}

// Wizard drives the interactive agent setup.
type Wizard struct {
	p *cli.Prompter
}

// New creates a Wizard using the given Prompter.
func New(p *cli.Prompter) *Wizard {
	return &Wizard{p: p}
}

// Run executes the interactive wizard and writes the config file. It
// returns the written config and the chosen identity settings.
func (w *Wizard) Run(outputPath string, generateSystemd bool) (*config.Config, Identity, error) {
	fmt.Fprintln(w.p.Out)
	fmt.Fprintln(w.p.Out, "  CapyDeploy Agent — Setup")
	fmt.Fprintln(w.p.Out, strings.Repeat("─", 42))
	fmt.Fprintln(w.p.Out)

	var id Identity

	fmt.Fprintln(w.p.Out, "Agent Identity")
	id.AgentName = w.p.Ask("  Agent name (shown on Hubs)", "Steam Deck")
	id.InstallPath = w.p.Ask("  Install directory for deployed games", "~/Games")
	fmt.Fprintln(w.p.Out)

	cfg := config.Default()

	fmt.Fprintln(w.p.Out, "Network")
	port := w.p.AskInt("  Listen port", protocol.DefaultPort)
	cfg.Server.Addr = fmt.Sprintf(":%d", port)
	fmt.Fprintln(w.p.Out)

	fmt.Fprintln(w.p.Out, "Logging")
	cfg.Log.Level = w.p.Choose("  Log level", []string{"debug", "info", "warn", "error"}, 1)
	fmt.Fprintln(w.p.Out)

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", config.DefaultPath())
	}

	if err := cfg.Save(outputPath); err != nil {
		return nil, Identity{}, err
	}

	fmt.Fprintf(w.p.Out, "\n  Config written to %s\n", outputPath)

	if generateSystemd {
		if err := w.writeSystemdUnit(outputPath); err != nil {
			return nil, Identity{}, err
		}
	}

	fmt.Fprintln(w.p.Out)
	fmt.Fprintln(w.p.Out, "  Next steps:")
	fmt.Fprintf(w.p.Out, "    capydeploy-agent run %s\n", outputPath)
	fmt.Fprintln(w.p.Out, "    capydeploy-agent enable   (allow Hub connections)")
	fmt.Fprintln(w.p.Out)

	return cfg, id, nil
}

func (w *Wizard) writeSystemdUnit(configPath string) error {
	unitPath := w.p.Ask("  Systemd unit file path", "/etc/systemd/system/capydeploy-agent.service")

	// Resolve absolute config path for the unit file.
	absConfig := configPath
	if !strings.HasPrefix(configPath, "/") {
		wd, err := os.Getwd()
		if err == nil {
			absConfig = wd + "/" + configPath
		}
	}

	unit := fmt.Sprintf(`[Unit]
Description=CapyDeploy Agent
After=network.target

[Service]
Type=simple
ExecStart=/usr/local/bin/capydeploy-agent run %s
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, absConfig)

	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write systemd unit: %w", err)
	}

	fmt.Fprintf(w.p.Out, "  Systemd unit written to %s\n", unitPath)
	fmt.Fprintln(w.p.Out, "  Enable with: sudo systemctl enable --now capydeploy-agent")
	return nil
}
