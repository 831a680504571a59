// Package steam probes the local Steam installation, spawns the
// service restart, and keeps the tracked-shortcut records the agent
// holds on behalf of the UI. It never writes into Steam's own files;
// shortcut creation is UI-resident.
package steam

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/capydeploy/agent/pkg/protocol"
)

// ErrSteamNotFound means no Steam installation was found under the
// resolved user home.
var ErrSteamNotFound = errors.New("steam installation not found")

// Control answers Steam queries for one user home.
type Control struct {
	home string
}

// NewControl returns a Control rooted at the given user home.
func NewControl(home string) *Control {
	return &Control{home: home}
}

// baseDir locates the Steam installation. Native installs link
// ~/.steam/steam; older setups use ~/.local/share/Steam; Flatpak keeps
// its own tree.
func (c *Control) baseDir() (string, error) {
	candidates := []string{
		filepath.Join(c.home, ".steam", "steam"),
		filepath.Join(c.home, ".local", "share", "Steam"),
		filepath.Join(c.home, ".var", "app", "com.valvesoftware.Steam", ".steam", "steam"),
	}
	for _, dir := range candidates {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}
	return "", ErrSteamNotFound
}

// Users lists the accounts under Steam's userdata directory. Directory
// "0" is Steam's scratch space, not an account.
func (c *Control) Users() ([]protocol.SteamUser, error) {
	base, err := c.baseDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(base, "userdata"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSteamNotFound
		}
		return nil, err
	}

	var users []protocol.SteamUser
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := strconv.ParseUint(name, 10, 64); err != nil {
			continue
		}
		if name == "0" {
			continue
		}
		shortcutsPath := filepath.Join(base, "userdata", name, "config", "shortcuts.vdf")
		_, statErr := os.Stat(shortcutsPath)
		users = append(users, protocol.SteamUser{
			ID:           name,
			HasShortcuts: statErr == nil,
		})
	}
	return users, nil
}
