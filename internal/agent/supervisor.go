// Package agent is the daemon supervisor. It owns the settings-backed
// identity, brings the Hub-facing surface up and down with the enabled
// flag, and serves the local control API over the Unix socket.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/discovery"
	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/events"
	"github.com/capydeploy/agent/internal/ipc"
	"github.com/capydeploy/agent/internal/metrics"
	"github.com/capydeploy/agent/internal/pairing"
	"github.com/capydeploy/agent/internal/platform"
	"github.com/capydeploy/agent/internal/server"
	"github.com/capydeploy/agent/internal/steam"
	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/internal/upload"
	"github.com/capydeploy/agent/pkg/protocol"
)

// capabilities advertised to Hubs in info_response.
var capabilities = []string{"file_upload", "steam_shortcuts", "steam_artwork"}

// Supervisor wires the agent's components together and implements both
// the wire protocol's view of agent state and the IPC control surface.
type Supervisor struct {
	cfg      *config.Config
	store    *store.Store
	bus      *eventbus.Bus
	events   *events.Publisher
	pairing  *pairing.Manager
	tracker  *steam.Tracker
	steam    *steam.Control
	uploads  *upload.Registry
	logger   *slog.Logger
	uiLogger *slog.Logger

	server     *server.Server
	advertiser *discovery.Advertiser
	control    *ipc.Server

	info      platform.Info
	version   string
	port      int
	startedAt time.Time
	baseCtx   context.Context

	mu          sync.Mutex
	agentID     string
	agentName   string
	acceptConns bool
	installPath string
	enabled     bool

	netMu     sync.Mutex
	netCancel context.CancelFunc
	netDone   chan struct{}
}

// New builds a supervisor over an opened settings store. It loads the
// persisted agent state, deriving and persisting the agent ID on first
// boot, and creates the install directory.
func New(cfg *config.Config, st *store.Store, version string, logger *slog.Logger, bus *eventbus.Bus) (*Supervisor, error) {
	s := &Supervisor{
		cfg:       cfg,
		store:     st,
		bus:       bus,
		events:    events.NewPublisher(st, bus),
		pairing:   pairing.NewManager(st),
		tracker:   steam.NewTracker(st),
		steam:     steam.NewControl(platform.UserHome()),
		logger:    logger.With("component", "agent"),
		uiLogger:  logger.With("component", "ui"),
		info:      platform.Probe(),
		version:   version,
		port:      listenPort(cfg.Server.Addr),
		startedAt: time.Now(),
		baseCtx:   context.Background(),
	}
	s.uploads = upload.NewRegistry(s.events, s.tracker, logger)

	if err := s.loadSettings(); err != nil {
		return nil, err
	}

	s.server = server.New(server.Options{
		Addr:    cfg.Server.Addr,
		State:   s,
		Pairing: s.pairing,
		Uploads: s.uploads,
		Tracker: s.tracker,
		Steam:   s.steam,
		Events:  s.events,
		Bus:     bus,
		Pinger:  st,
		Logger:  logger,
	})
	s.advertiser = discovery.NewAdvertiser(logger)
	s.control = ipc.NewServer(cfg.State.SocketPath, s, bus, logger)

	if hubs, err := s.pairing.Hubs(); err == nil {
		metrics.AuthorizedHubs.Set(float64(len(hubs)))
	}

	return s, nil
}

func (s *Supervisor) loadSettings() error {
	name, err := s.store.GetString(store.KeyAgentName, "Steam Deck")
	if err != nil {
		return fmt.Errorf("load agent_name: %w", err)
	}
	accept, err := s.store.GetBool(store.KeyAcceptConnections, true)
	if err != nil {
		return fmt.Errorf("load accept_connections: %w", err)
	}
	install, err := s.store.GetString(store.KeyInstallPath, filepath.Join(platform.UserHome(), "Games"))
	if err != nil {
		return fmt.Errorf("load install_path: %w", err)
	}
	enabled, err := s.store.GetBool(store.KeyEnabled, false)
	if err != nil {
		return fmt.Errorf("load enabled: %w", err)
	}

	id, err := s.store.GetString(store.KeyAgentID, "")
	if err != nil {
		return fmt.Errorf("load agent_id: %w", err)
	}
	if id == "" {
		id = deriveAgentID(name, time.Now())
		if err := s.store.Set(store.KeyAgentID, id); err != nil {
			return fmt.Errorf("persist agent_id: %w", err)
		}
	}

	install = platform.ExpandHome(install)
	if err := os.MkdirAll(install, 0o755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	s.mu.Lock()
	s.agentID = id
	s.agentName = name
	s.acceptConns = accept
	s.installPath = install
	s.enabled = enabled
	s.mu.Unlock()
	return nil
}

// deriveAgentID is computed once on first boot and persisted; renames
// afterwards do not change the identity Hubs remember.
func deriveAgentID(name string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-linux-%d", name, now.Unix())))
	return hex.EncodeToString(sum[:])[:8]
}

// listenPort extracts the advertised port from the listen address,
// falling back to the protocol default for unparseable or ephemeral
// addresses.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return protocol.DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return protocol.DefaultPort
	}
	return port
}

// Run serves until ctx is cancelled. The control socket is always up;
// the Hub-facing server and mDNS advertising follow the enabled flag.
func (s *Supervisor) Run(ctx context.Context) error {
	s.baseCtx = ctx

	if err := os.MkdirAll(filepath.Dir(s.cfg.State.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := s.control.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer func() { _ = s.control.Close() }()

	s.mu.Lock()
	id, name, enabled := s.agentID, s.agentName, s.enabled
	s.mu.Unlock()
	s.logger.Info("agent loaded",
		"id", id,
		"name", name,
		"platform", s.info.Platform,
		"enabled", enabled)

	if enabled {
		if err := s.startNetwork(); err != nil {
			return err
		}
	}
	defer s.stopNetwork()

	<-ctx.Done()
	s.logger.Info("agent shutting down")
	return nil
}

// startNetwork brings up the Hub-facing listener and mDNS advertising.
// Starting an already-running network is a no-op.
func (s *Supervisor) startNetwork() error {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	if s.netCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.server.Run(ctx); err != nil {
			s.logger.Error("hub server failed", "error", err)
		}
	}()

	// Advertising failure is not fatal; the agent stays reachable by
	// address.
	if err := s.advertiser.Start(s.identity()); err != nil {
		s.logger.Warn("mdns advertising failed", "error", err)
	}

	s.netCancel = cancel
	s.netDone = done
	return nil
}

// stopNetwork tears the Hub-facing surface down and waits for the
// listener to finish. Stopping a stopped network is a no-op.
func (s *Supervisor) stopNetwork() {
	s.netMu.Lock()
	cancel, done := s.netCancel, s.netDone
	s.netCancel, s.netDone = nil, nil
	s.netMu.Unlock()
	if cancel == nil {
		return
	}

	s.advertiser.Stop()
	cancel()
	<-done
}

func (s *Supervisor) identity() discovery.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return discovery.Identity{
		ID:       s.agentID,
		Name:     s.agentName,
		Platform: s.info.Platform,
		Version:  s.version,
		Port:     s.port,
	}
}

// Info implements server.AgentState.
func (s *Supervisor) Info() protocol.AgentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.AgentInfo{
		ID:                s.agentID,
		Name:              s.agentName,
		Platform:          s.info.Platform,
		Version:           s.version,
		AcceptConnections: s.acceptConns,
		Capabilities:      capabilities,
	}
}

// InstallPath implements server.AgentState.
func (s *Supervisor) InstallPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installPath
}

// Status implements ipc.Controller.
func (s *Supervisor) Status() ipc.StatusResult {
	s.mu.Lock()
	enabled, name, install := s.enabled, s.agentName, s.installPath
	s.mu.Unlock()

	hub, connected := s.server.ConnectedHub()

	status := ipc.StatusResult{
		Enabled:     enabled,
		Connected:   connected,
		AgentName:   name,
		InstallPath: install,
		Platform:    s.info.Platform,
		Version:     s.version,
		Port:        s.port,
		IP:          platform.LocalIP(),
		Uptime:      time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if connected {
		status.HubName = hub.Name
	}
	return status
}

// GetSetting implements ipc.Controller. Well-known keys report the
// live value; anything else reads the store directly.
func (s *Supervisor) GetSetting(key string) (json.RawMessage, error) {
	s.mu.Lock()
	var v any
	switch key {
	case store.KeyAgentID:
		v = s.agentID
	case store.KeyAgentName:
		v = s.agentName
	case store.KeyAcceptConnections:
		v = s.acceptConns
	case store.KeyInstallPath:
		v = s.installPath
	case store.KeyEnabled:
		v = s.enabled
	default:
		s.mu.Unlock()
		raw, err := s.store.Get(key)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("setting %q not set", key)
		}
		return raw, nil
	}
	s.mu.Unlock()
	return json.Marshal(v)
}

// SetSetting implements ipc.Controller. Well-known keys route through
// their typed setters so live state and side effects stay coherent.
func (s *Supervisor) SetSetting(key string, value json.RawMessage) error {
	switch key {
	case store.KeyAgentID:
		return errors.New("agent_id cannot be changed")
	case store.KeyAgentName:
		var name string
		if err := json.Unmarshal(value, &name); err != nil {
			return errors.New("agent_name must be a string")
		}
		return s.SetAgentName(name)
	case store.KeyInstallPath:
		var path string
		if err := json.Unmarshal(value, &path); err != nil {
			return errors.New("install_path must be a string")
		}
		return s.SetInstallPath(path)
	case store.KeyEnabled:
		var enabled bool
		if err := json.Unmarshal(value, &enabled); err != nil {
			return errors.New("enabled must be a boolean")
		}
		return s.SetEnabled(enabled)
	case store.KeyAcceptConnections:
		var accept bool
		if err := json.Unmarshal(value, &accept); err != nil {
			return errors.New("accept_connections must be a boolean")
		}
		s.mu.Lock()
		s.acceptConns = accept
		s.mu.Unlock()
		return s.store.Set(store.KeyAcceptConnections, accept)
	default:
		return s.store.Set(key, value)
	}
}

// SetEnabled implements ipc.Controller.
func (s *Supervisor) SetEnabled(enabled bool) error {
	s.mu.Lock()
	was := s.enabled
	s.enabled = enabled
	s.mu.Unlock()

	if err := s.store.Set(store.KeyEnabled, enabled); err != nil {
		return err
	}
	if enabled == was {
		return nil
	}
	if enabled {
		s.logger.Info("agent enabled")
		return s.startNetwork()
	}
	s.logger.Info("agent disabled")
	s.stopNetwork()
	return nil
}

// GetEvent implements ipc.Controller: read-and-clear drain of one
// event slot.
func (s *Supervisor) GetEvent(name string) (*events.Record, error) {
	return s.events.Get(name)
}

// SetAgentName implements ipc.Controller. A live mDNS registration is
// replaced so browsing Hubs see the new name.
func (s *Supervisor) SetAgentName(name string) error {
	s.mu.Lock()
	s.agentName = name
	s.mu.Unlock()
	if err := s.store.Set(store.KeyAgentName, name); err != nil {
		return err
	}
	if s.advertiser.Running() {
		if err := s.advertiser.Start(s.identity()); err != nil {
			s.logger.Warn("mdns re-announce failed", "error", err)
		}
	}
	s.logger.Info("agent renamed", "name", name)
	return nil
}

// SetInstallPath implements ipc.Controller. A leading ~/ expands to
// the resolved user home; the directory is created immediately.
func (s *Supervisor) SetInstallPath(path string) error {
	expanded := platform.ExpandHome(path)
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}
	s.mu.Lock()
	s.installPath = expanded
	s.mu.Unlock()
	if err := s.store.Set(store.KeyInstallPath, expanded); err != nil {
		return err
	}
	s.logger.Info("install path changed", "path", expanded)
	return nil
}

// RegisterShortcut implements ipc.Controller: the UI reports the AppID
// Steam allocated for a tracked game.
func (s *Supervisor) RegisterShortcut(gameName string, appID uint32) error {
	return s.tracker.Assign(gameName, appID)
}

// AuthorizedHubs implements ipc.Controller.
func (s *Supervisor) AuthorizedHubs() (map[string]pairing.AuthorizedHub, error) {
	return s.pairing.Hubs()
}

// RevokeHub implements ipc.Controller.
func (s *Supervisor) RevokeHub(hubID string) (bool, error) {
	revoked, err := s.pairing.Revoke(hubID)
	if err != nil {
		return false, err
	}
	if revoked {
		s.logger.Info("hub revoked", "hub_id", hubID)
	}
	return revoked, nil
}

// InstalledGames implements ipc.Controller.
func (s *Supervisor) InstalledGames() ([]protocol.TrackedShortcut, error) {
	return s.tracker.List()
}

// UninstallGame implements ipc.Controller. The tracked record is
// dropped, the game directory removed when it resolves under the
// install root, and remove_shortcut emitted so the UI can delete the
// Steam entry. Returns nil for a game that was not tracked.
func (s *Supervisor) UninstallGame(name string) (*protocol.TrackedShortcut, error) {
	rec, err := s.tracker.RemoveByName(name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if dir := steam.UnquotePath(rec.StartDir); dir != "" {
		if err := steam.RemoveGameDir(dir, s.InstallPath()); err != nil {
			s.logger.Warn("remove game directory", "game", name, "error", err)
		}
	}

	if err := s.events.Publish(eventbus.RemoveShortcut, rec); err != nil {
		s.logger.Warn("event publish failed", "event", eventbus.RemoveShortcut, "error", err)
	}
	s.logger.Info("game uninstalled", "game", rec.GameName)
	return rec, nil
}

// LogMessage implements ipc.Controller: UI-originated log lines pass
// through the daemon's logger.
func (s *Supervisor) LogMessage(level, message string) {
	switch level {
	case "error":
		s.uiLogger.Error(message)
	case "warn":
		s.uiLogger.Warn(message)
	case "debug":
		s.uiLogger.Debug(message)
	default:
		s.uiLogger.Info(message)
	}
}
