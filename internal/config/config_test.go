package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected default addr :9999, got %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if !strings.HasSuffix(cfg.State.DBPath, filepath.Join(".config", "capydeploy-agent", "agent.db")) {
		t.Errorf("unexpected db path: %q", cfg.State.DBPath)
	}
	if !strings.HasSuffix(cfg.State.SocketPath, "control.sock") {
		t.Errorf("unexpected socket path: %q", cfg.State.SocketPath)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeTemp(t, `{
		"server": {"addr": "0.0.0.0:8765"},
		"state": {"db_path": "/var/lib/agent.db", "socket_path": "/run/agent.sock"},
		"log": {"level": "debug", "format": "text"}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:8765" {
		t.Errorf("addr not preserved: %q", cfg.Server.Addr)
	}
	if cfg.State.DBPath != "/var/lib/agent.db" || cfg.State.SocketPath != "/run/agent.sock" {
		t.Errorf("state paths not preserved: %+v", cfg.State)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log settings not preserved: %+v", cfg.Log)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", `{"log": {"level": "verbose"}}`},
		{"bad format", `{"log": {"format": "xml"}}`},
		{"bad addr", `{"server": {"addr": "nonsense"}}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	if _, err := Load(path); err == nil {
		t.Error("Load of a missing file must error")
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected defaults, got addr %q", cfg.Server.Addr)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Log.Level = "debug"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("expected saved level, got %q", loaded.Log.Level)
	}
	if loaded.Server.Addr != cfg.Server.Addr {
		t.Errorf("addr mismatch: %q vs %q", loaded.Server.Addr, cfg.Server.Addr)
	}
}
