package steam

import (
	"fmt"
	"os/exec"
)

// Restart spawns a Steam service restart via the system service
// manager. Output is discarded; success means the spawn succeeded, not
// that Steam came back. The child is reaped in the background.
func (c *Control) Restart() error {
	cmd := exec.Command("systemctl", "restart", "steam")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn steam restart: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
