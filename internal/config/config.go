// Package config handles agent configuration loading and validation.
//
// The config file covers process-level settings only. Mutable agent state
// (name, install path, enabled flag, authorized hubs, tracked shortcuts)
// lives in the settings store, where the control API can change it at
// runtime.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/capydeploy/agent/internal/platform"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Config is the top-level agent configuration.
type Config struct {
	Server ServerConfig `json:"server"`
	State  StateConfig  `json:"state"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig defines the network listener hubs connect to.
type ServerConfig struct {
	Addr string `json:"addr,omitempty"`
}

// StateConfig defines where the agent keeps durable state and its
// local control socket.
type StateConfig struct {
	DBPath     string `json:"db_path,omitempty"`
	SocketPath string `json:"socket_path,omitempty"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json, text
}

// Dir returns the agent's config directory.
func Dir() string {
	return filepath.Join(platform.UserHome(), ".config", "capydeploy-agent")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns a config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads the file at path, falling back to defaults when
// the file does not exist. The daemon runs fine with no config file.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text")
	}
	if c.Server.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			return fmt.Errorf("server.addr: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	dir := Dir()
	if c.Server.Addr == "" {
		c.Server.Addr = fmt.Sprintf(":%d", protocol.DefaultPort)
	}
	if c.State.DBPath == "" {
		c.State.DBPath = filepath.Join(dir, "agent.db")
	}
	if c.State.SocketPath == "" {
		c.State.SocketPath = filepath.Join(dir, "control.sock")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Save writes the config to path, creating parent directories as
// needed. Used by the init wizard.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
