// Package platform probes the host for handheld-specific traits: which
// device family the agent is running on, the LAN address worth
// advertising, and the home directory game installs should live under.
package platform

import (
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Platform identifiers reported to Hubs. Hubs use these to pick
// artwork resolutions and default install paths, so the strings are
// part of the wire contract.
const (
	SteamDeck = "steamdeck"
	LegionGo  = "legiongologo"
	ROGAlly   = "rogally"
	ChimeraOS = "chimeraos"
	Bazzite   = "bazzite"
	Linux     = "linux"
)

// Info is a snapshot of the probed host.
type Info struct {
	Platform string
	Hostname string
	LocalIP  string
}

// Probe gathers platform, hostname and LAN address in one call.
func Probe() Info {
	return Info{
		Platform: DetectPlatform(),
		Hostname: Hostname(),
		LocalIP:  LocalIP(),
	}
}

// DetectPlatform identifies the handheld family. Device marker paths
// win over the os-release scan: a Steam Deck reimaged with Bazzite
// still reports steamdeck.
func DetectPlatform() string { return detectPlatform("/") }

func detectPlatform(root string) string {
	if _, err := os.Stat(filepath.Join(root, "home/deck")); err == nil {
		return SteamDeck
	}
	if _, err := os.Stat(filepath.Join(root, "usr/share/plymouth/themes/legion-go")); err == nil {
		return LegionGo
	}
	if _, err := os.Stat(filepath.Join(root, "usr/share/plymouth/themes/rogally")); err == nil {
		return ROGAlly
	}
	if data, err := os.ReadFile(filepath.Join(root, "etc/os-release")); err == nil {
		release := strings.ToLower(string(data))
		switch {
		case strings.Contains(release, "steamos"):
			return SteamDeck
		case strings.Contains(release, "chimeraos"):
			return ChimeraOS
		case strings.Contains(release, "bazzite"):
			return Bazzite
		}
	}
	return Linux
}

// LocalIP returns the IPv4 address the host would use on the LAN.
// Dialing UDP sends no packets; it only makes the kernel pick the
// outbound interface. Falls back to loopback on hosts with no route.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// Hostname returns the machine hostname, or a fixed fallback when the
// kernel will not say.
func Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "capydeploy-agent"
	}
	return name
}

// UserHome resolves the home directory that owns the Steam install.
// Plugin loaders run the agent as root, so the process's own home is
// the last resort rather than the first guess.
func UserHome() string { return userHome("/") }

func userHome(root string) string {
	for _, name := range []string{"deck", "lobinux"} {
		dir := filepath.Join(root, "home", name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	// Any user with a Steam directory will do.
	entries, err := os.ReadDir(filepath.Join(root, "home"))
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, "home", entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ".steam")); err == nil {
				return dir
			}
		}
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "/root"
}

// ExpandHome replaces a leading "~/" with the resolved user home.
// Other paths pass through unchanged.
func ExpandHome(path string) string { return expandHome(path, UserHome()) }

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
