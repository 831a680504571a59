// Package discovery advertises the agent over mDNS/DNS-SD so hubs on
// the local network can find it without manual addressing.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service type hubs browse for.
	ServiceType = "_capydeploy._tcp"
	// Domain is the mDNS domain the service registers under.
	Domain = "local."
)

// Identity describes the agent instance being advertised. All fields
// except Port end up in the TXT record.
type Identity struct {
	ID       string
	Name     string
	Platform string
	Version  string
	Port     int
}

// Advertiser owns the zeroconf registration handle. Start and Stop
// synchronize, so the agent can toggle advertising as it is enabled
// and disabled or re-announce after a rename.
type Advertiser struct {
	logger *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewAdvertiser(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger.With("component", "discovery")}
}

// Start registers the agent with the local mDNS responder. A running
// registration is replaced, which lets callers re-announce a changed
// agent name without an explicit Stop.
func (a *Advertiser) Start(id Identity) error {
	if id.Port == 0 {
		return fmt.Errorf("discovery: port must be set")
	}

	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("discovery: enumerate interfaces: %w", err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("discovery: no usable network addresses")
	}

	hostname := hostName()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.RegisterProxy(
		id.ID,
		ServiceType,
		Domain,
		id.Port,
		hostname,
		ips,
		txtRecords(id),
		nil,
	)
	if err != nil {
		return fmt.Errorf("discovery: register service: %w", err)
	}

	a.server = server
	a.logger.Info("advertising agent",
		"instance", id.ID,
		"service", ServiceType,
		"port", id.Port,
		"ips", ips)
	return nil
}

// Stop withdraws the mDNS registration. Stopping an advertiser that
// is not running is a no-op.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("stopped advertising")
}

// Running reports whether a registration is currently live.
func (a *Advertiser) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// txtRecords builds the TXT key/value pairs hubs read to identify the
// agent before connecting.
func txtRecords(id Identity) []string {
	return []string{
		"id=" + id.ID,
		"name=" + id.Name,
		"platform=" + id.Platform,
		"version=" + id.Version,
	}
}

// localIPs returns the IPv4 addresses worth advertising: up, not
// loopback, not link-local.
func localIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip, ok := usableIPv4(addr); ok {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

// usableIPv4 extracts an advertisable IPv4 address from an interface
// address, rejecting loopback and 169.254.0.0/16 link-local.
func usableIPv4(addr net.Addr) (net.IP, bool) {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return nil, false
	}

	ip4 := ip.To4()
	if ip4 == nil || ip4.IsLoopback() {
		return nil, false
	}
	if ip4[0] == 169 && ip4[1] == 254 {
		return nil, false
	}
	return ip4, true
}

func hostName() string {
	name, err := os.Hostname()
	if err != nil {
		return "capydeploy-agent"
	}
	return name
}
