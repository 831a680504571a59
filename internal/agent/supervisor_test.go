package agent

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/capydeploy/agent/internal/config"
	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/pkg/protocol"
)

func timeFixed() time.Time { return time.Unix(1700000000, 0) }

type testAgent struct {
	sup   *Supervisor
	store *store.Store
	cfg   *config.Config
	root  string
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// Keep the install directory inside the test sandbox; the default
	// would land under the real user home.
	root := filepath.Join(t.TempDir(), "Games")
	if err := st.Set(store.KeyInstallPath, root); err != nil {
		t.Fatalf("seed install path: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.State.SocketPath = filepath.Join(t.TempDir(), "agent.sock")

	bus := eventbus.New()
	t.Cleanup(bus.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup, err := New(cfg, st, "0.1.0", logger, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sup.stopNetwork)

	return &testAgent{sup: sup, store: st, cfg: cfg, root: root}
}

func TestBootstrapDefaults(t *testing.T) {
	ta := newTestAgent(t)

	info := ta.sup.Info()
	if info.Name != "Steam Deck" {
		t.Errorf("name = %q, want %q", info.Name, "Steam Deck")
	}
	if !info.AcceptConnections {
		t.Error("accept_connections should default to true")
	}
	if len(info.ID) != 8 {
		t.Errorf("agent id = %q, want 8 chars", info.ID)
	}
	if len(info.Capabilities) != 3 {
		t.Errorf("capabilities = %v", info.Capabilities)
	}
	if ta.sup.InstallPath() != ta.root {
		t.Errorf("install path = %q, want %q", ta.sup.InstallPath(), ta.root)
	}
	if _, err := os.Stat(ta.root); err != nil {
		t.Errorf("install directory not created: %v", err)
	}

	status := ta.sup.Status()
	if status.Enabled {
		t.Error("enabled should default to false")
	}
	if status.Connected {
		t.Error("no hub should be connected")
	}
}

func TestAgentIDStable(t *testing.T) {
	ta := newTestAgent(t)
	first := ta.sup.Info().ID

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	again, err := New(ta.cfg, ta.store, "0.1.0", logger, bus)
	if err != nil {
		t.Fatalf("New again: %v", err)
	}
	if got := again.Info().ID; got != first {
		t.Errorf("agent id changed across restarts: %q then %q", first, got)
	}
}

func TestDeriveAgentID(t *testing.T) {
	id := deriveAgentID("Steam Deck", timeFixed())
	if len(id) != 8 {
		t.Fatalf("id = %q, want 8 hex chars", id)
	}
	if id != deriveAgentID("Steam Deck", timeFixed()) {
		t.Error("id not deterministic for same inputs")
	}
	if id == deriveAgentID("Other Deck", timeFixed()) {
		t.Error("id ignores the agent name")
	}
}

func TestListenPort(t *testing.T) {
	cases := []struct {
		addr string
		want int
	}{
		{":9999", 9999},
		{"0.0.0.0:8080", 8080},
		{"127.0.0.1:0", protocol.DefaultPort},
		{"not-an-addr", protocol.DefaultPort},
	}
	for _, tc := range cases {
		if got := listenPort(tc.addr); got != tc.want {
			t.Errorf("listenPort(%q) = %d, want %d", tc.addr, got, tc.want)
		}
	}
}

func TestSetAgentName(t *testing.T) {
	ta := newTestAgent(t)

	if err := ta.sup.SetAgentName("Living Room Deck"); err != nil {
		t.Fatalf("SetAgentName: %v", err)
	}
	if got := ta.sup.Info().Name; got != "Living Room Deck" {
		t.Errorf("live name = %q", got)
	}
	persisted, err := ta.store.GetString(store.KeyAgentName, "")
	if err != nil || persisted != "Living Room Deck" {
		t.Errorf("persisted name = %q, err %v", persisted, err)
	}
}

func TestSetInstallPath(t *testing.T) {
	ta := newTestAgent(t)
	next := filepath.Join(t.TempDir(), "deploy", "games")

	if err := ta.sup.SetInstallPath(next); err != nil {
		t.Fatalf("SetInstallPath: %v", err)
	}
	if got := ta.sup.InstallPath(); got != next {
		t.Errorf("install path = %q, want %q", got, next)
	}
	if _, err := os.Stat(next); err != nil {
		t.Errorf("directory not created: %v", err)
	}
	persisted, err := ta.store.GetString(store.KeyInstallPath, "")
	if err != nil || persisted != next {
		t.Errorf("persisted path = %q, err %v", persisted, err)
	}
}

func TestSettingRouting(t *testing.T) {
	ta := newTestAgent(t)

	raw, err := ta.sup.GetSetting(store.KeyAgentName)
	if err != nil {
		t.Fatalf("get agent_name: %v", err)
	}
	if string(raw) != `"Steam Deck"` {
		t.Errorf("agent_name = %s", raw)
	}

	if err := ta.sup.SetSetting(store.KeyAcceptConnections, json.RawMessage(`false`)); err != nil {
		t.Fatalf("set accept_connections: %v", err)
	}
	if ta.sup.Info().AcceptConnections {
		t.Error("accept_connections not applied to live state")
	}

	if err := ta.sup.SetSetting(store.KeyAgentID, json.RawMessage(`"deadbeef"`)); err == nil {
		t.Error("agent_id should be immutable")
	}

	if err := ta.sup.SetSetting(store.KeyEnabled, json.RawMessage(`"yes"`)); err == nil {
		t.Error("enabled should reject non-boolean values")
	}

	// Unknown keys pass through to the store.
	if err := ta.sup.SetSetting("custom_key", json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("set custom key: %v", err)
	}
	raw, err = ta.sup.GetSetting("custom_key")
	if err != nil || string(raw) != `{"n":1}` {
		t.Errorf("custom key = %s, err %v", raw, err)
	}

	if _, err := ta.sup.GetSetting("never_set"); err == nil {
		t.Error("expected error for unset key")
	}
}

func TestEnableDisable(t *testing.T) {
	ta := newTestAgent(t)

	if err := ta.sup.SetEnabled(true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	enabled, err := ta.store.GetBool(store.KeyEnabled, false)
	if err != nil || !enabled {
		t.Errorf("enabled not persisted: %v, err %v", enabled, err)
	}
	ta.sup.netMu.Lock()
	running := ta.sup.netCancel != nil
	ta.sup.netMu.Unlock()
	if !running {
		t.Fatal("network not started on enable")
	}

	// Enabling again must not spawn a second listener.
	if err := ta.sup.SetEnabled(true); err != nil {
		t.Fatalf("re-enable: %v", err)
	}

	if err := ta.sup.SetEnabled(false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	ta.sup.netMu.Lock()
	running = ta.sup.netCancel != nil
	ta.sup.netMu.Unlock()
	if running {
		t.Error("network still up after disable")
	}
	if ta.sup.Status().Enabled {
		t.Error("status still reports enabled")
	}

	// Disabling twice is a no-op.
	if err := ta.sup.SetEnabled(false); err != nil {
		t.Fatalf("re-disable: %v", err)
	}
}

func TestUninstallGame(t *testing.T) {
	ta := newTestAgent(t)

	dir := filepath.Join(ta.root, "Celeste")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("seed game dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "celeste.exe"), []byte("bin"), 0o755); err != nil {
		t.Fatalf("seed game file: %v", err)
	}
	rec := protocol.TrackedShortcut{
		Name:     "Celeste",
		GameName: "Celeste",
		AppID:    123456,
		StartDir: `"` + dir + `"`,
	}
	if err := ta.sup.tracker.Register(rec); err != nil {
		t.Fatalf("seed tracker: %v", err)
	}

	removed, err := ta.sup.UninstallGame("Celeste")
	if err != nil {
		t.Fatalf("UninstallGame: %v", err)
	}
	if removed == nil || removed.AppID != 123456 {
		t.Fatalf("removed = %+v", removed)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("game directory still present: %v", err)
	}

	games, err := ta.sup.InstalledGames()
	if err != nil {
		t.Fatalf("InstalledGames: %v", err)
	}
	if len(games) != 0 {
		t.Errorf("games = %+v", games)
	}

	slot, err := ta.sup.GetEvent("remove_shortcut")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if slot == nil {
		t.Fatal("remove_shortcut event not published")
	}
	var evRec protocol.TrackedShortcut
	if err := json.Unmarshal(slot.Data, &evRec); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evRec.AppID != 123456 {
		t.Errorf("event appId = %d", evRec.AppID)
	}

	// A second uninstall finds nothing.
	removed, err = ta.sup.UninstallGame("Celeste")
	if err != nil {
		t.Fatalf("UninstallGame repeat: %v", err)
	}
	if removed != nil {
		t.Errorf("expected nil for untracked game, got %+v", removed)
	}
}

func TestRegisterShortcut(t *testing.T) {
	ta := newTestAgent(t)

	if err := ta.sup.tracker.Register(protocol.TrackedShortcut{GameName: "Hades"}); err != nil {
		t.Fatalf("seed tracker: %v", err)
	}
	if err := ta.sup.RegisterShortcut("Hades", 42); err != nil {
		t.Fatalf("RegisterShortcut: %v", err)
	}
	games, err := ta.sup.InstalledGames()
	if err != nil {
		t.Fatalf("InstalledGames: %v", err)
	}
	if len(games) != 1 || games[0].AppID != 42 {
		t.Errorf("games = %+v", games)
	}
}

func TestGetEventDrains(t *testing.T) {
	ta := newTestAgent(t)

	if err := ta.sup.events.Publish("pairing_code", map[string]string{"code": "123456"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	rec, err := ta.sup.GetEvent("pairing_code")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a pending record")
	}
	rec, err = ta.sup.GetEvent("pairing_code")
	if err != nil {
		t.Fatalf("GetEvent again: %v", err)
	}
	if rec != nil {
		t.Errorf("slot not drained: %+v", rec)
	}
}
